package linkauth

import (
	"embed"
	"fmt"
	"html/template"
	"io"
)

//go:embed views/*.html
var viewFS embed.FS

// Views renders the pages served by LinkAuth
type Views struct {
	pages map[string]*template.Template
}

var pageNames = []string{"index", "login", "signup", "profile", "connect_local"}

// LoadViews parses the embedded page templates
func LoadViews() (*Views, error) {
	v := &Views{pages: map[string]*template.Template{}}
	for _, name := range pageNames {
		t, err := template.ParseFS(viewFS, "views/layout.html", "views/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("error parsing view %s: %w", name, err)
		}
		v.pages[name] = t
	}
	return v, nil
}

// Render executes the named page with data
func (v *Views) Render(w io.Writer, name string, data any) error {
	t, ok := v.pages[name]
	if !ok {
		return fmt.Errorf("unknown view: %s", name)
	}
	return t.ExecuteTemplate(w, name+".html", data)
}

type pageData struct {
	Title     string
	Message   string
	Providers []Provider
}

type providerView struct {
	Name    Provider
	Linked  bool
	Profile *ProviderProfile
}

type profileData struct {
	Title       string
	Message     string
	Account     *Account
	LocalLinked bool
	Providers   []providerView
}

func newProfileData(account *Account, providers []Provider, message string) profileData {
	out := profileData{
		Title:       "Profile",
		Message:     message,
		Account:     account,
		LocalLinked: account.Linked(ProviderLocal),
	}
	for _, p := range providers {
		out.Providers = append(out.Providers, providerView{
			Name:    p,
			Linked:  account.Linked(p),
			Profile: account.ProviderProfile(p),
		})
	}
	return out
}
