package main

import (
	"fmt"

	"github.com/wolfeidau/repospanner"
	"github.com/wolfeidau/repospanner/refs"
)

// ShowRefCmd lists references.
type ShowRefCmd struct {
	Pattern string `arg:"" optional:"" help:"Shell glob; '*' also matches '/'."`
}

func (c *ShowRefCmd) Run(g *Globals) error {
	repo, err := g.Open()
	if err != nil {
		return err
	}

	it, err := repo.Refs().Iterator(g.Ctx, c.Pattern)
	if err != nil {
		return err
	}
	defer func() { _ = it.Close() }()

	var n int
	err = it.ForEach(func(ref refs.Reference) error {
		n++
		_, err := fmt.Fprintf(g.Stdout, "%s %s\n", ref.Target, ref.Name)
		return err
	})
	if err != nil {
		return err
	}

	g.Logger.Debug("listed references",
		"pattern", c.Pattern,
		"matched", n,
		"digest", repo.Refs().Digest().ShortString(),
		"loaded_at", repo.Refs().LoadedAt(),
	)
	return nil
}

// RevParseCmd resolves one reference.
type RevParseCmd struct {
	Name string `arg:"" help:"Reference name, e.g. HEAD or refs/heads/main."`
}

func (c *RevParseCmd) Run(g *Globals) error {
	repo, err := g.Open()
	if err != nil {
		return err
	}

	ref, err := repo.Refs().Lookup(g.Ctx, c.Name)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(g.Stdout, ref.Target)
	return err
}

// CatFileCmd prints an object.
type CatFileCmd struct {
	Type   bool   `short:"t" xor:"mode" help:"Print the object type."`
	Size   bool   `short:"s" xor:"mode" help:"Print the object size."`
	Pretty bool   `short:"p" xor:"mode" help:"Print the object content (default)."`
	ID     string `arg:"" help:"Object id (40 hex characters)."`
}

func (c *CatFileCmd) Run(g *Globals) error {
	id, err := repospanner.ParseObjectID(c.ID)
	if err != nil {
		return err
	}

	repo, err := g.Open()
	if err != nil {
		return err
	}

	if c.Type || c.Size {
		h, err := repo.Objects().ReadHeader(g.Ctx, id)
		if err != nil {
			return err
		}
		if c.Type {
			_, err = fmt.Fprintln(g.Stdout, h.Type)
		} else {
			_, err = fmt.Fprintln(g.Stdout, h.Size)
		}
		return err
	}

	obj, err := repo.Objects().Read(g.Ctx, id)
	if err != nil {
		return err
	}
	_, err = g.Stdout.Write(obj.Data)
	return err
}

// ExistsCmd reports object existence through the exit status.
type ExistsCmd struct {
	ID string `arg:"" help:"Object id (40 hex characters)."`
}

func (c *ExistsCmd) Run(g *Globals) error {
	id, err := repospanner.ParseObjectID(c.ID)
	if err != nil {
		return err
	}

	repo, err := g.Open()
	if err != nil {
		return err
	}

	ok, err := repo.Objects().Exists(g.Ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		g.Logger.Debug("object not found", "id", id.String())
		return &exitError{code: 1}
	}
	return nil
}

// VersionCmd prints the build version.
type VersionCmd struct{}

func (c *VersionCmd) Run(g *Globals) error {
	_, err := fmt.Fprintln(g.Stdout, version)
	return err
}
