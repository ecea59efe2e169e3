package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"

	"github.com/segmentio/ksuid"
	"github.com/urfave/cli/v2"
)

// Vehicle is one fixture document. Categories holds a hierarchical facet
// with one attribute per level.
type Vehicle struct {
	ObjectID   string            `json:"objectID"`
	Make       string            `json:"make"`
	Model      string            `json:"model"`
	Year       int               `json:"year"`
	Color      string            `json:"color"`
	Fuel       string            `json:"fuel"`
	Price      int               `json:"price"`
	Mileage    int               `json:"mileage"`
	Features   []string          `json:"features"`
	Categories map[string]string `json:"categories"`
}

var (
	makes = map[string][]string{
		"Toyota":    {"Camry", "Corolla", "Prius", "RAV4", "Highlander", "Tacoma", "4Runner"},
		"Honda":     {"Civic", "Accord", "CR-V", "Pilot", "Fit", "HR-V", "Ridgeline"},
		"Ford":      {"F-150", "Mustang", "Explorer", "Escape", "Focus", "Fusion", "Bronco"},
		"BMW":       {"3 Series", "5 Series", "X3", "X5", "i3", "i8", "Z4"},
		"Mercedes":  {"C-Class", "E-Class", "S-Class", "GLC", "GLE", "A-Class", "CLA"},
		"Audi":      {"A3", "A4", "A6", "Q3", "Q5", "Q7", "TT"},
		"Chevrolet": {"Silverado", "Equinox", "Malibu", "Tahoe", "Suburban", "Camaro", "Corvette"},
		"Nissan":    {"Altima", "Sentra", "Rogue", "Pathfinder", "Frontier", "Titan", "370Z"},
	}

	// makeKeys fixes the iteration order of makes so seeded runs repeat.
	makeKeys = []string{"Audi", "BMW", "Chevrolet", "Ford", "Honda", "Mercedes", "Nissan", "Toyota"}

	colors = []string{
		"Red", "Blue", "Black", "White", "Silver", "Gray", "Green", "Yellow", "Orange", "Purple",
	}

	fuels = []string{"Gasoline", "Diesel", "Hybrid", "Electric"}

	bodies = []string{"Sedan", "SUV", "Coupe", "Hatchback", "Pickup"}

	features = []string{"Sunroof", "Navigation", "Heated Seats", "Backup Camera", "Bluetooth", "Leather", "Tow Package"}
)

func generateRandomVehicle(r *rand.Rand) Vehicle {
	selectedMake := makeKeys[r.IntN(len(makeKeys))]
	models := makes[selectedMake]
	body := bodies[r.IntN(len(bodies))]

	var selected []string
	for _, f := range features {
		if r.IntN(3) == 0 {
			selected = append(selected, f)
		}
	}

	return Vehicle{
		ObjectID: ksuid.New().String(),
		Make:     selectedMake,
		Model:    models[r.IntN(len(models))],
		Year:     r.IntN(10) + 2015, // 2015-2024
		Color:    colors[r.IntN(len(colors))],
		Fuel:     fuels[r.IntN(len(fuels))],
		Price:    (r.IntN(80) + 10) * 500,
		Mileage:  r.IntN(150) * 1000,
		Features: selected,
		Categories: map[string]string{
			"lvl0": body,
			"lvl1": body + " > " + selectedMake,
		},
	}
}

func writeVehicles(w io.Writer, r *rand.Rand, count int) error {
	vehicles := make([]Vehicle, 0, count)
	for i := 0; i < count; i++ {
		vehicles = append(vehicles, generateRandomVehicle(r))
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(vehicles); err != nil {
		return fmt.Errorf("failed to encode vehicles: %w", err)
	}
	return nil
}

func runAction(c *cli.Context) error {
	ctx := c.Context
	count := c.Int("count")
	output := c.String("output")

	if count <= 0 {
		return fmt.Errorf("count must be positive, got %d", count)
	}

	seed := c.Uint64("seed")
	if !c.IsSet("seed") {
		seed = rand.Uint64()
	}
	r := rand.New(rand.NewPCG(seed, seed))

	slog.InfoContext(ctx, "Starting vehicle generator",
		"count", count,
		"output", output,
		"seed", seed,
	)

	w := io.Writer(os.Stdout)
	if output != "" && output != "-" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if err := writeVehicles(w, r, count); err != nil {
		return err
	}

	slog.InfoContext(ctx, "Successfully generated vehicles", "count", count)
	return nil
}

func main() {
	// Configure JSON logging for AWS environments
	if os.Getenv("AWS_LAMBDA_RUNTIME_API") != "" || os.Getenv("AWS_REGION") != "" {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))
	}

	app := &cli.App{
		Name:  "generator",
		Usage: "Generate a JSON fixture of random vehicles for the in-memory backend",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "count",
				Aliases: []string{"c"},
				Usage:   "Number of vehicles to generate",
				Value:   100,
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output file; '-' or empty writes to stdout",
			},
			&cli.Uint64Flag{
				Name:  "seed",
				Usage: "Random seed, for repeatable fixtures",
			},
		},
		Action: runAction,
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("Application failed", "error", err)
		os.Exit(1)
	}
}
