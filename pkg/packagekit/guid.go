package packagekit

import (
	"strings"

	"github.com/google/uuid"
)

// StableAppID returns a deterministic GUID for an application
// identifier. Installer upgrades only work when the id is identical
// across releases, so we either store the GUID or derive it predictably
// from stable inputs. This derives it.
func StableAppID(identifier string) string {
	u := uuid.NewMD5(uuid.NameSpaceDNS, []byte("termicom"+identifier))
	return strings.ToUpper(u.String())
}
