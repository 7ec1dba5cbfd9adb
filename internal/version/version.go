package version

// Version is set at build time with -ldflags "-X github.com/NowakAdmin/DeviceHub/internal/version.Version=...".
var Version = "dev"
