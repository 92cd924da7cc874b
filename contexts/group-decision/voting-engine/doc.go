// Package votingengine runs a group's idea vote: a time-boxed, multi-round
// plurality session with author exclusion, scarce veto cards, tie-breakers and
// automatic resolution on quorum or deadline.
//
// Everything that changes a session goes through commands.SessionUseCase,
// inside one unit of work, and leaves through an outbox row. Reads go through
// queries.StatusUseCase, which may lazily close an overdue session. The
// workers package relays the outbox, sweeps deadlines and hands the winning
// idea back to the idea inventory.
package votingengine
