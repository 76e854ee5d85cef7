package commands

// Definition is one chat command. Channels restricts it to the named
// channels; empty means everywhere.
type Definition struct {
	Name        string
	Description string
	Usage       string
	Aliases     []string
	Channels    []string
	Handler     Handler
}
