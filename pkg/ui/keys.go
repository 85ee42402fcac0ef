package ui

import "github.com/charmbracelet/bubbles/key"

// KeyMap holds the dashboard bindings.
type KeyMap struct {
	Quit      key.Binding
	FocusNext key.Binding
	Search    key.Binding
	Filter    key.Binding
	Escape    key.Binding
	Up        key.Binding
	Down      key.Binding
	Left      key.Binding
	Right     key.Binding
	PageUp    key.Binding
	PageDown  key.Binding
	Toggle    key.Binding
	Expand    key.Binding
	ZoomIn    key.Binding
	ZoomOut   key.Binding
	PanUp     key.Binding
	PanDown   key.Binding
	PanLeft   key.Binding
	PanRight  key.Binding
	Select    key.Binding
	Home      key.Binding
	BaseMap   key.Binding
	Refresh   key.Binding
	Reset     key.Binding
	Export    key.Binding
	Share     key.Binding
	Help      key.Binding
}

// DefaultKeyMap returns the default bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Quit:      key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "salir")),
		FocusNext: key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "panel")),
		Search:    key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "buscar")),
		Filter:    key.NewBinding(key.WithKeys("f"), key.WithHelp("f", "filtrar capas")),
		Escape:    key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cerrar")),
		Up:        key.NewBinding(key.WithKeys("up", "k")),
		Down:      key.NewBinding(key.WithKeys("down", "j")),
		Left:      key.NewBinding(key.WithKeys("left", "h")),
		Right:     key.NewBinding(key.WithKeys("right", "l")),
		PageUp:    key.NewBinding(key.WithKeys("pgup")),
		PageDown:  key.NewBinding(key.WithKeys("pgdown")),
		Toggle:    key.NewBinding(key.WithKeys(" ", "x"), key.WithHelp("espacio", "marcar")),
		Expand:    key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "abrir")),
		ZoomIn:    key.NewBinding(key.WithKeys("+", "="), key.WithHelp("+/-", "zoom")),
		ZoomOut:   key.NewBinding(key.WithKeys("-", "_")),
		PanUp:     key.NewBinding(key.WithKeys("up", "k", "w")),
		PanDown:   key.NewBinding(key.WithKeys("down", "j", "s")),
		PanLeft:   key.NewBinding(key.WithKeys("left", "h", "a")),
		PanRight:  key.NewBinding(key.WithKeys("right", "l", "d")),
		Select:    key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "detalle")),
		Home:      key.NewBinding(key.WithKeys("0"), key.WithHelp("0", "inicio")),
		BaseMap:   key.NewBinding(key.WithKeys("b"), key.WithHelp("b", "mapa base")),
		Refresh:   key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "recargar")),
		Reset:     key.NewBinding(key.WithKeys("R"), key.WithHelp("R", "reiniciar")),
		Export:    key.NewBinding(key.WithKeys("E"), key.WithHelp("E", "exportar")),
		Share:     key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "copiar enlace")),
		Help:      key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "ayuda")),
	}
}

// ShortHelp implements help.KeyMap.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Search, k.FocusNext, k.Toggle, k.ZoomIn, k.BaseMap, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Search, k.Filter, k.FocusNext, k.Escape},
		{k.Toggle, k.Expand, k.Select, k.Home},
		{k.ZoomIn, k.BaseMap, k.Refresh, k.Reset},
		{k.Export, k.Share, k.Help, k.Quit},
	}
}
