package view

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"strconv"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"marquee/models"
	"marquee/services/metadata"
)

//go:embed templates/*.html
var templateFS embed.FS

// Renderer writes the HTML pages. Numbers are formatted for its locale.
type Renderer struct {
	lang    language.Tag
	printer *message.Printer
	detail  *template.Template
	login   *template.Template
	home    *template.Template
}

// NewRenderer parses the embedded templates for the given locale
// ("en-US" when empty or invalid).
func NewRenderer(locale string) (*Renderer, error) {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.AmericanEnglish
	}

	parse := func(page string) (*template.Template, error) {
		t, err := template.New(page).ParseFS(templateFS, "templates/layout.html", "templates/"+page)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", page, err)
		}
		return t, nil
	}

	r := &Renderer{lang: tag, printer: message.NewPrinter(tag)}
	if r.detail, err = parse("detail.html"); err != nil {
		return nil, err
	}
	if r.login, err = parse("login.html"); err != nil {
		return nil, err
	}
	if r.home, err = parse("home.html"); err != nil {
		return nil, err
	}
	return r, nil
}

type page struct {
	Lang      string
	PageTitle string
	SignedIn  bool
	Body      any
}

type detailBody struct {
	Title      *models.Title
	PosterURL  string
	Rating     string
	Budget     string
	TrailerURL string
	Genres     []string
	Companies  []string
	Countries  []string
}

// Detail renders the title page for d.
//
// The genre list comes from the record the view was built with, not from the
// genres set by enrichment (Detail.Genres). The two can differ.
func (r *Renderer) Detail(w io.Writer, d *Detail) error {
	title := d.Title()
	if title == nil {
		return fmt.Errorf("render detail: no title record")
	}

	body := detailBody{
		Title:      title,
		PosterURL:  metadata.PosterURL(title.PosterPath, metadata.PosterSize),
		Rating:     strconv.FormatFloat(title.VoteAverage, 'f', -1, 64),
		Budget:     r.FormatBudget(title.Budget),
		TrailerURL: metadata.TrailerEmbedURL(d.TrailerKey()),
		Genres:     make([]string, 0, len(title.Genres)),
		Companies:  make([]string, 0, len(title.ProductionCompanies)),
		Countries:  make([]string, 0, len(title.ProductionCountries)),
	}
	for _, g := range title.Genres {
		body.Genres = append(body.Genres, g.Name)
	}
	for _, c := range title.ProductionCompanies {
		body.Companies = append(body.Companies, c.Name)
	}
	for _, c := range title.ProductionCountries {
		body.Countries = append(body.Countries, c.Name)
	}

	return r.detail.ExecuteTemplate(w, "layout", page{
		Lang:      r.lang.String(),
		PageTitle: title.Title,
		SignedIn:  true,
		Body:      body,
	})
}

// LoginPage is the data of the sign-in form.
type LoginPage struct {
	Action   string
	Next     string
	Username string
	Error    string
}

// Login renders the sign-in form.
func (r *Renderer) Login(w io.Writer, data LoginPage) error {
	return r.login.ExecuteTemplate(w, "layout", page{
		Lang:      r.lang.String(),
		PageTitle: "Sign in",
		Body:      data,
	})
}

// HomePage is the data of the signed-in landing page.
type HomePage struct {
	Username string
	// DefaultPassword warns that the bootstrap password is still in use.
	DefaultPassword bool
}

// Home renders the landing page.
func (r *Renderer) Home(w io.Writer, data HomePage) error {
	return r.home.ExecuteTemplate(w, "layout", page{
		Lang:      r.lang.String(),
		PageTitle: "marquee",
		SignedIn:  true,
		Body:      data,
	})
}

// FormatBudget groups the budget with the locale's thousands separator and
// appends a dollar marker. Zero means unknown and yields "".
func (r *Renderer) FormatBudget(budget int64) string {
	if budget == 0 {
		return ""
	}
	return r.printer.Sprintf("%d", budget) + " $"
}
