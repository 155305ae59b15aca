// Completion: 100% - Power specializer demo complete
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/xyproto/lego"
)

const versionString = "legopow 1.0.0"

var typeNames = map[string]lego.Type{
	"u8":  lego.U8,
	"u16": lego.U16,
	"u32": lego.U32,
	"u64": lego.U64,
	"i8":  lego.I8,
	"i16": lego.I16,
	"i32": lego.I32,
	"i64": lego.I64,
}

// parseType looks up an integer type by name
func parseType(name string) (lego.Type, error) {
	t, ok := typeNames[strings.ToLower(name)]
	if !ok {
		return lego.Type{}, fmt.Errorf("unsupported type: %s (supported: u8, u16, u32, u64, i8, i16, i32, i64)", name)
	}
	return t, nil
}

// parseOperand parses x as a value of type t
func parseOperand(t lego.Type, x string) (any, error) {
	if t.Signed() {
		return strconv.ParseInt(x, 0, t.Bits())
	}
	return strconv.ParseUint(x, 0, t.Bits())
}

// specialize builds pow_n(x) = x^n with the n-1 multiplications unrolled.
// Multiplication wraps in both signed and unsigned types.
func specialize(ctx *lego.Context, t lego.Type, n uint) (*lego.Func, error) {
	name := fmt.Sprintf("pow_%d_%s", n, t)
	return ctx.Build(name, lego.Sig([]lego.Type{t}, t), func(b *lego.Builder) lego.Flow {
		if n == 0 {
			return lego.Break(b.ConstU(t, 1))
		}
		x := b.Param(0)
		acc := x
		for i := uint(1); i < n; i++ {
			acc = b.Mul(acc, x)
		}
		return lego.Break(acc)
	})
}

func run(c *cli.Context) error {
	cfg := lego.ConfigFromEnv()
	if path := c.String("config"); path != "" {
		loaded, err := lego.LoadConfig(path)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if c.IsSet("backend") {
		cfg.Backend = c.String("backend")
	}
	if c.Bool("verbose") {
		cfg.Verbose = true
	}

	t, err := parseType(c.String("type"))
	if err != nil {
		return err
	}
	x, err := parseOperand(t, c.String("x"))
	if err != nil {
		return fmt.Errorf("invalid operand %q for %s: %w", c.String("x"), t, err)
	}

	ctx, err := lego.New(lego.WithConfig(cfg))
	if err != nil {
		return err
	}
	defer ctx.Close()

	f, err := specialize(ctx, t, c.Uint("n"))
	if err != nil {
		if be, ok := err.(*lego.BuildError); ok {
			fmt.Fprint(os.Stderr, be.Format(true))
		}
		return err
	}
	if c.Bool("dump") {
		fmt.Print(f.String())
	}
	if c.Bool("llvm") {
		text, err := f.LLVM()
		if err != nil {
			return err
		}
		fmt.Print(text)
	}

	results, err := f.Invoke(x)
	if err != nil {
		return err
	}
	fmt.Printf("%v^%d = %v (%s backend, %d bytes of code)\n", x, c.Uint("n"), results[0], ctx.BackendName(), f.CodeSize())
	return nil
}

func main() {
	app := &cli.App{
		Name:    "legopow",
		Usage:   "Compile x^n for a fixed n at runtime and evaluate it",
		Version: versionString,
		Flags: []cli.Flag{
			&cli.UintFlag{
				Name:  "n",
				Value: 3,
				Usage: "exponent, unrolled into n-1 multiplications",
			},
			&cli.StringFlag{
				Name:  "x",
				Value: "2",
				Usage: "base to evaluate the compiled function with",
			},
			&cli.StringFlag{
				Name:  "type",
				Value: "u64",
				Usage: "integer type of the function (u8, u16, u32, u64, i8, i16, i32, i64)",
			},
			&cli.StringFlag{
				Name:    "backend",
				Value:   lego.BackendAuto,
				Usage:   "code generation backend (auto, amd64, interp)",
				EnvVars: []string{"LEGO_BACKEND"},
			},
			&cli.StringFlag{
				Name:  "config",
				Usage: "TOML configuration file",
			},
			&cli.BoolFlag{
				Name:  "dump",
				Usage: "print the SSA of the compiled function",
			},
			&cli.BoolFlag{
				Name:  "llvm",
				Usage: "print the function as LLVM IR",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "show build messages",
			},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "legopow: %v\n", err)
		os.Exit(1)
	}
}
