package packaging

// PlatformFlavor is the platform a distribution is staged for. Only
// windows installers are produced today, but the staging code doesn't
// need to care.
type PlatformFlavor string

const (
	Darwin  PlatformFlavor = "darwin"
	Windows PlatformFlavor = "windows"
	Linux   PlatformFlavor = "linux"
)

func (p PlatformFlavor) String() string {
	return string(p)
}

// PlatformBinaryName is a helper to return the platform specific binary suffix.
func (p PlatformFlavor) PlatformBinaryName(input string) string {
	if p == Windows {
		return input + ".exe"
	}
	return input
}
