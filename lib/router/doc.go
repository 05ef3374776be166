/*
Package router implements the retry routing of client requests.

A Router knows the replicas of a cluster and a LeaderCache. Do sends an operation
to the cached leader (or the first replica) and decides after every failure what
to do next, using the pure function Decide:

	ForwardToLeader{id}   retry at id immediately and cache id
	ForwardToLeader{}     election in progress: back off, retry at the cached leader
	                      or the next replica
	ConnectionError       retry the same endpoint, then move on
	ReadTimeout           back off, retry the same node
	everything else       return to the caller

A leader reported by a node always wins over the cached one. The cache is
invalidated when the cached leader itself answers that it does not know the
leader (or can not be reached).

Both the number of attempts and the elapsed time are bounded by Config. When the
budget is exhausted Do returns the last error it observed, never a generic timeout.

Usage:

	r := router.New(router.DefaultConfig(), cache, []uint64{1, 2, 3})
	err := r.Do(ctx, router.OpWrite, func(ctx context.Context, target uint64) error {
		return send(ctx, target, request)
	})
*/
package router
