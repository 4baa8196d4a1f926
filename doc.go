// Package identity manages the credential lifecycle of marketplace accounts:
// registration, verification by one time code, login with signed session
// tokens, and password recovery.
//
// Account lifecycle:
//   - An account has two independent axes. Verification moves one way from
//     unverified to verified. Activation moves between active and deactivated
//     and only an operator may change it. Deactivated accounts cannot log in.
//   - AccountStateMachine owns both axes, stamps the timestamps, runs hooks,
//     and persists the account with a single Save.
//
// One time codes:
//   - Each account holds at most one pending verification code and one
//     pending reset code. Issuing a new code replaces the old one; a code is
//     cleared when consumed. Codes expire after the OTP engine TTL.
//
// Concurrency:
//   - Every read-modify-write runs under a per account Locker and the store
//     compare-and-swaps on Account.Version. Conflicts are retried a few times
//     before surfacing as an internal error.
//
// Notifications:
//   - Codes leave the process through a Notifier. Delivery is fire and
//     forget: the Dispatcher runs it detached from the request and a failure
//     never fails the operation.
//
// Activity sinks:
//   - ActivitySink receives an audit event for every lifecycle change, login
//     attempt and issued code. Sinks are best effort; errors are logged.
package identity
