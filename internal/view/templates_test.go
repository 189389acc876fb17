package view

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memopsy/memopsy/internal/shared"
)

func TestNewEngine(t *testing.T) {
	engine, err := NewEngine()
	assert.NoError(t, err, "Templates should parse without error")
	assert.NotNil(t, engine)
}

func TestRenderPages(t *testing.T) {
	engine, err := NewEngine()
	require.NoError(t, err)

	sess := &shared.Session{UserID: 1, Email: "ana@example.com", Active: true, Person: shared.PersonSnapshot{Name: "Ana", Surname: "Paz"}}
	pages := map[string]TemplateData{
		"pages/signin.html":       {Title: "Iniciar sesión", Data: map[string]string{"CallbackURL": "/dashboard", "Email": ""}},
		"pages/inactive.html":     {Title: "Cuenta inactiva"},
		"pages/unauthorized.html": {Title: "Acceso denegado"},
		"pages/dashboard.html":    {Title: "Inicio", Session: sess, Nav: []NavLink{{Label: "Usuarios", Href: "/dashboard/usuarios"}}},
		"pages/section.html":      {Title: "Usuarios", Session: sess, Data: map[string]string{"Module": "Usuarios"}},
	}
	for name, data := range pages {
		rec := httptest.NewRecorder()
		require.NoError(t, engine.Render(rec, name, data), name)
		assert.Contains(t, rec.Body.String(), "<title>"+data.Title, name)
		assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	}
}

func TestNilEngine(t *testing.T) {
	var e *Engine
	assert.Error(t, e.Render(httptest.NewRecorder(), "pages/signin.html", TemplateData{}))
}
