/*
Package dispatcher applies configuration changes to the IKE daemon and the
kernel one at a time, in the order they were queued.

# Architecture

	  producers (API, manifest restore, tests)
	        │ AddTask
	        ▼
	┌───────────────────────────────────────────────┐
	│ Dispatcher                                     │
	│                                                │
	│   mu + deque.Deque ──── cond.Signal ───┐       │
	│                                        ▼       │
	│                          consumer goroutine    │
	│                          (lifecycle.Runner)    │
	│                                │               │
	│       ┌───────────┬────────────┼──────────┐    │
	│       ▼           ▼            ▼          ▼    │
	│    KindIKE      KindCA       KindSA     KindSP │
	└───────┼───────────┼────────────┼──────────┼────┘
	        ▼           ▼            ▼          ▼
	    ike.Client  ike.Client  xfrm.Client xfrm.Client

Tasks can be queued while the dispatcher is stopped; they run once it is
started. The consumer pops a task under the lock and runs it with the lock
released, so producers never wait on a netlink or VICI call.

# Actions

	Kind   add                   modify                remove
	ike    CreateConnection      CreateConnection      DeleteConnection
	ca     LoadAuthority         LoadAuthority         UnloadAuthority
	sa     AddSA                 ModifySA              DelSA
	sp     AddSP                 ModifySP              DelSP

Loading a connection or an authority under an existing name replaces it, so
add and modify share a call.

# Failures

A failed task is logged, counted and reported to Config.OnResult wrapped in
types.ErrExternalCall. It never stops the tasks behind it. A task of an
unknown kind is dropped and counted separately.

# Stopping

Stop wakes the consumer and waits for it. The consumer finishes every task
still queued before it exits, so Stop returning means the queue is empty.
Close discards the queue first and then stops.
*/
package dispatcher
