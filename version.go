package glazejs

// Version is the release version, set with -ldflags at build time.
var Version = "0.1.0-dev"
