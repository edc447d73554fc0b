package packagekit

import "fmt"

// PackageOptions is the superset of installer rendering options. It is
// deliberately decoupled from the manifest types; callers map one onto
// the other.
type PackageOptions struct {
	Name      string // display name (eg: TermiCOM)
	Version   string // app version, already resolved (never "auto" here)
	Publisher string
	Author    string
	URL       string

	AppID   string // bare GUID sans braces; empty means derive from Name
	ExeName string // installed executable (eg: WolfWire.exe)
	Root    string // distribution directory the [Files] sources live in

	Rules []FileRule

	DesktopIcon     bool // offer the desktopicon task
	RunAfterInstall bool // launch the app from the installer's finish page
}

// FileRule is one [Files] staging rule. Source is relative to Root, Dest
// is relative to the install directory ("." for the root itself).
type FileRule struct {
	Source    string
	Dest      string
	Recursive bool
}

// OutputBaseFilename is the basename (no extension) of the produced
// setup executable.
func (po *PackageOptions) OutputBaseFilename() string {
	return fmt.Sprintf("%s_%s_windows_setup", po.Name, po.Version)
}
