/*
Package errcode defines the application level errors of the metadata service.

An ErrorCode is what a caller outside of the consensus layer sees: a numeric code,
its symbolic name and a message. The codes are stable, so a client can react on
them (e.g. treat DatabaseAlreadyExists on a create as success):

	if errors.Is(err, errcode.DatabaseAlreadyExists("")) {
		// database is already there
	}

Every failure that is not an application error is collapsed into a
MetaServiceError when it leaves the metaerr package (see metaerr.ToErrorCode).
*/
package errcode
