package utils

// Version is the current version of the agent. It's set by the build.
var Version = "0.1.0-dev"
