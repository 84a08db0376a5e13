package weave

// Version is set at link time with -ldflags "-X github.com/aretw0/weave.Version=...".
var Version = "dev"
