/*
Package metaerr contains the error taxonomy of the metadata service.

Every public operation of the service fails with a *MetaError. The Kind field
tells the caller what to do about it:

  - ForwardToLeader: retry at the named leader (or back off if no leader is known)
  - ConnectionError: transport failure, retry at the same or another node
  - ReadTimeout: a linearizable read did not observe its index in time, retry later
  - ErrorCode: application error, surface it unchanged
  - ChangeMembershipError, InvalidConfig, UnknownError: surface, do not retry
  - MetaStoreAlreadyExists, MetaStoreNotFound: lifecycle misuse of a local store
  - SerdeJsonError, BadBytes, MetaStoreDamaged: integrity failures, surface and log

Conversions from lower layers are total functions (FromErrorCode, FromJSONError,
FromUTF8Error, DecodeUTF8, Connection), the conversion back to the application
layer is ToErrorCode.

A MetaError serializes to self describing JSON, e.g.

	{"kind":"ForwardToLeader","forward":{"leader":3}}
	{"kind":"ConnectionError","conn":{"msg":"connect to node 2","source":{"kind":"dial","type":"*net.OpError","msg":"..."}}}

and decodes back into an equal value. The gob encoding reuses the JSON form.

Two more error types live here: RetryableError, which the write path produces
when a leader is definitely known, and ShutdownError, the terminal signal consumed
by the shutdown supervisor.
*/
package metaerr
