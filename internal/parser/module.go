package parser

import (
	"io"

	"github.com/Swordelf2/compprac2/internal/ir"
)

// collector is a Handler that keeps everything in an ir.Module.
type collector struct {
	module *ir.Module
}

func (c *collector) Data(d *ir.Decl) error {
	c.module.AddDecl(d)
	return nil
}

func (c *collector) Func(fn *ir.Function) error {
	c.module.AddFunction(fn)
	return nil
}

// ParseModule reads a whole program from r into memory.
func ParseModule(r io.Reader, name string) (*ir.Module, error) {
	c := &collector{module: ir.NewModule()}
	if err := Parse(r, name, c); err != nil {
		return nil, err
	}
	return c.module, nil
}
