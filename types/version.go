package types

// Version is reported by `glean version` and sent in the webhook
// User-Agent.
const Version = "0.3.0"
