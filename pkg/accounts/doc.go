// Package accounts manages user registration, login and sessions. It is the
// only package that reads or writes password hashes.
package accounts
