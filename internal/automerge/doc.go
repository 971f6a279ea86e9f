// Package automerge approves and merges pull requests of a trusted
// dependency update actor after their CI run succeeded.
//
// A pipeline run processes exactly one CI completion event in 3 sequential
// stages:
//
// - Filter: the event is admitted if the run concluded successfully and it
// was triggered by the trusted actor,
//
// - Resolver: the open pull request that contains the head commit of the
// run is looked up,
//
// - Executor: the pull request is approved and squash-merged.
//
// Every stage short-circuits the run when its result is negative or it
// failed. A rejected event and a commit without pull request are regular
// outcomes, not errors.
//
// Runs do not share any state. Events can be delivered more than once, an
// already merged pull request is reported as StatusMergeNoop instead of a
// failure.
package automerge
