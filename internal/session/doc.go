// Package session keeps the per-instance registry of users to live
// transport sessions. It drives the broker's bookkeeping subscriptions and
// the instance's backplane-visible interest keys, and releases both when
// the last local session departs.
package session
