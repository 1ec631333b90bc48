package welcome

import (
	"strings"

	"github.com/suspectuso/welcome-bot/internal/messenger"
)

const (
	RoleFreelancer = "freelancer"
	RoleEmployer   = "employer"
)

// Keyboard returns the site and per-role registration buttons
func Keyboard(siteURL, registerURL string) [][]messenger.Button {
	return [][]messenger.Button{
		{{Text: "🌐 Ir a QvaClick", URL: siteURL}},
		{{Text: "👩‍💻 Soy Freelancer", URL: RoleURL(registerURL, RoleFreelancer)}},
		{{Text: "🏢 Soy Empleador", URL: RoleURL(registerURL, RoleEmployer)}},
	}
}

// RoleURL appends the role selector to the registration link.
func RoleURL(registerURL, role string) string {
	sep := "?"
	if strings.Contains(registerURL, "?") {
		sep = "&"
	}
	return registerURL + sep + "qvc_role=" + role
}
