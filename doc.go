// Package registration implements two phase account sign up: a visitor
// submits an email address, receives an activation key by email and uses
// it within a configurable window to activate the account.
//
// Profiles:
//   - RegistrationProfile stores the email, the 40 character activation key
//     and the registration time. A consumed key is replaced by
//     ActivatedSentinel so a profile can never be activated twice.
//   - ProfileStore creates profiles, sends activation emails through a
//     Notifier and removes expired or activated profiles.
//
// Activation:
//   - Activator looks up the key, runs the configured ActivationMethod and
//     consumes the key inside one transaction. A method that fails leaves the
//     key usable, two concurrent activations of the same key can not both
//     succeed.
//
// Backends:
//   - Backend bundles the registration policy, forms, activation method and
//     redirects. Registry and Resolver turn a configured name into a ready
//     Backend, RegisterDefaults installs DefaultBackend and the bundled forms.
//
// Activity sinks:
//   - ActivitySink receives profile, email and activation events. Sinks run
//     best-effort, errors are logged and never fail the registration.
package registration
