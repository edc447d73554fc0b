package packagekit

import (
	"context"
	"io"
	"text/template"

	"github.com/pkg/errors"
	"go.opencensus.io/trace"
)

// RenderInnoSetup writes an Inno Setup script for the given options.
//
// We render with go templates rather than leaning on Inno's #define
// preprocessor. It's a little more debugable this way -- the
// intermediate iss file is complete and can be compiled by hand.
func RenderInnoSetup(ctx context.Context, w io.Writer, po *PackageOptions) error {
	_, span := trace.StartSpan(ctx, "packagekit.RenderInnoSetup")
	defer span.End()

	appID := po.AppID
	if appID == "" {
		appID = StableAppID(po.Name)
	}

	sourceRoot := po.Root
	if sourceRoot == "" {
		sourceRoot = "dist"
	}

	innoTemplate := `; Inno Setup script for {{.Opts.Name}}. Generated, do not edit.

[Setup]
AppId={{.AppIDBraced}}
AppName={{.Opts.Name}}
AppVersion={{.Opts.Version}}
AppPublisher={{.Opts.Publisher}}
{{- if .Opts.URL}}
AppPublisherURL={{.Opts.URL}}
{{- end}}
{{- if .Opts.Author}}
AppContact={{.Opts.Author}}
{{- end}}
DefaultDirName={autopf}\{{.Opts.Name}}
DefaultGroupName={{.Opts.Name}}
DisableProgramGroupPage=yes
ArchitecturesAllowed=x64
ArchitecturesInstallIn64BitMode=x64
Compression=lzma2
SolidCompression=yes
WizardStyle=modern
OutputBaseFilename={{.OutputBase}}
{{- if .Opts.DesktopIcon}}

[Tasks]
Name: "desktopicon"; Description: "{cm:CreateDesktopIcon}"; GroupDescription: "{cm:AdditionalIcons}"; Flags: unchecked
{{- end}}

[Files]
{{- range .Opts.Rules}}
Source: "{{$.SourceRoot}}\{{.Source}}{{if .Recursive}}\*{{end}}"; DestDir: "{app}{{if ne .Dest "."}}\{{.Dest}}{{end}}"; Flags: ignoreversion{{if .Recursive}} recursesubdirs createallsubdirs{{end}}
{{- end}}

[Icons]
Name: "{autoprograms}\{{.Opts.Name}}"; Filename: "{app}\{{.Opts.ExeName}}"
{{- if .Opts.DesktopIcon}}
Name: "{autodesktop}\{{.Opts.Name}}"; Filename: "{app}\{{.Opts.ExeName}}"; Tasks: desktopicon
{{- end}}
{{- if .Opts.RunAfterInstall}}

[Run]
Filename: "{app}\{{.Opts.ExeName}}"; Description: "{cm:LaunchProgram,{{.Opts.Name}}}"; Flags: nowait postinstall skipifsilent
{{- end}}
`

	var data = struct {
		Opts        *PackageOptions
		AppIDBraced string
		SourceRoot  string
		OutputBase  string
	}{
		Opts:        po,
		AppIDBraced: "{{" + appID + "}",
		SourceRoot:  sourceRoot,
		OutputBase:  po.OutputBaseFilename(),
	}

	t, err := template.New("InnoSetup").Parse(innoTemplate)
	if err != nil {
		return errors.Wrap(err, "not able to parse InnoSetup template")
	}
	return errors.Wrap(t.ExecuteTemplate(w, "InnoSetup", data), "executing InnoSetup template")
}
