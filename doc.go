// Package miniwallet and its sub-packages implement the backend services for a single-session browser wallet on an
// ethereum-type chain.
/*
miniwallet provides you with two microservices:

1) a wallet microservice (package wallet) that implements a RESTful API for a single session credential: generating,
 importing and restoring the session key, checking its balance, sending transfers with pre-flight validation, listing
 past transfers and keeping an address book of known recipients.

2) an otp microservice (package otp) that emails one-time passcodes and verifies them, used as a gate before a wallet
 session is handed out to a new user.

Architecture

The wallet service holds exactly one session credential at a time. The raw credential is kept in a session store so a
reconnecting client can restore it, and its balance is refreshed on a timer while the session is active. The store
keeps the key in plain text: treat anything run against real funds accordingly. Sending a transfer goes
through resolution of the recipient (a hex address or a name-service name), a fee estimate, a funds check, submission
and receipt polling until the transfer confirms or reverts.

The address book lives in a durable store with a database product agnostic interface (package lib/store); MongoDB,
PostgreSQL and a process-memory implementation are provided and selected via the JSON config file at service startup.

A chain layer (package lib/chain) isolates the blockchain client so other ethereum-type networks can be added. Past
transfers are listed through a block-explorer query API (package lib/history) rather than scanning blocks locally.

When a message broker is configured (package lib/msg), the wallet publishes an event every time a submitted transfer
changes state, so other services can observe wallet activity in real time.

The otp microservice (package otp) keeps issued passcodes in an expiring in-process cache: a passcode lives for the
configured TTL, verifies at most once and is replaced when a new one is issued for the same address. Mail credentials
carry no defaults and must be supplied through the config file or OS ENV variables.

The microservices can also be monitored via a Prometheus API by setting the flag "-m" at startup.

The wallet microservice can be started running cmd/walletd/main.go, the otp microservice cmd/otpd/main.go.
*/
package miniwallet
