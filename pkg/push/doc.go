// Package push manages the lifecycle of a Web Push subscription on behalf of
// one application origin.
//
// A Coordinator drives the platform through registration of the background
// worker, activation, permission negotiation and subscription, then mirrors
// new subscriptions to a remote store through a Syncer:
//
//	UNINITIALIZED --Initialize--> REGISTERING --active--> READY
//	REGISTERING --failure/timeout--> UNINITIALIZED
//	READY --Subscribe--> REQUESTING_PERMISSION --granted--> SUBSCRIBING --> SUBSCRIBED
//	REQUESTING_PERMISSION --denied--> READY
//	SUBSCRIBING --failure--> READY
//	SUBSCRIBED --Unsubscribe--> READY
//
// The platform (worker container, permission store, push manager) is an
// external collaborator reached through the Platform and Registration
// interfaces.
//
// A Coordinator is owned by the application's composition root: construct it
// at startup with New and release it with Close at shutdown. Mutating
// operations are serialized; at most one is in flight at a time.
package push
