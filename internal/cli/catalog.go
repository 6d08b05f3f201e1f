package cli

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/artisan-market/api/internal/di"
	domain "github.com/artisan-market/api/internal/domain"
)

// catalogFile is the seed format. Prices are rupees as shop owners write them.
type catalogFile struct {
	Products []catalogEntry `yaml:"products"`
}

type catalogEntry struct {
	ID       string  `yaml:"id"`
	Name     string  `yaml:"name"`
	Category string  `yaml:"category"`
	ImageURL string  `yaml:"image_url"`
	Price    float64 `yaml:"price"`
	Stock    int     `yaml:"stock"`
}

func (e catalogEntry) toDomain() (domain.Product, error) {
	var problems []string
	if strings.TrimSpace(e.ID) == "" {
		problems = append(problems, "id is required")
	}
	if strings.TrimSpace(e.Name) == "" {
		problems = append(problems, "name is required")
	}
	if e.Price < 0 || math.IsNaN(e.Price) || math.IsInf(e.Price, 0) {
		problems = append(problems, "price must be a non-negative amount")
	}
	if e.Stock < 0 {
		problems = append(problems, "stock must be >= 0")
	}
	if len(problems) > 0 {
		return domain.Product{}, errors.New(strings.Join(problems, "; "))
	}
	return domain.Product{
		ID:       strings.TrimSpace(e.ID),
		Name:     strings.TrimSpace(e.Name),
		Category: strings.TrimSpace(e.Category),
		ImageURL: strings.TrimSpace(e.ImageURL),
		Price:    int64(math.Round(e.Price * 100)),
		Stock:    e.Stock,
	}, nil
}

func parseCatalog(data []byte) ([]domain.Product, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}
	if len(file.Products) == 0 {
		return nil, errors.New("catalog has no products")
	}
	products := make([]domain.Product, 0, len(file.Products))
	seen := make(map[string]struct{}, len(file.Products))
	for i, entry := range file.Products {
		product, err := entry.toDomain()
		if err != nil {
			return nil, fmt.Errorf("product %d: %w", i+1, err)
		}
		if _, dup := seen[product.ID]; dup {
			return nil, fmt.Errorf("product %d: duplicate id %q", i+1, product.ID)
		}
		seen[product.ID] = struct{}{}
		products = append(products, product)
	}
	return products, nil
}

func newCatalogCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage the product catalog",
	}
	cmd.AddCommand(newCatalogSeedCmd(a))
	cmd.AddCommand(newCatalogListCmd(a))
	return cmd
}

func newCatalogSeedCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <catalog.yaml>",
		Short: "Create or replace products from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading catalog: %w", err)
			}
			products, err := parseCatalog(data)
			if err != nil {
				return err
			}
			return a.withRuntime(cmd.Context(), func(rt *di.Runtime) error {
				repo := rt.Container.Repositories.Products()
				for _, product := range products {
					if _, err := repo.Upsert(cmd.Context(), product); err != nil {
						return fmt.Errorf("upserting %s: %w", product.ID, err)
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %d products\n", okStyle.Render("seeded"), len(products))
				return nil
			})
		},
	}
}

func newCatalogListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List products with current stock",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withRuntime(cmd.Context(), func(rt *di.Runtime) error {
				products, err := rt.Container.Repositories.Products().List(cmd.Context())
				if err != nil {
					return fmt.Errorf("listing products: %w", err)
				}
				rows := make([][]string, 0, len(products))
				for _, p := range products {
					rows = append(rows, []string{p.ID, p.Name, p.Category, formatRupees(p.Price), strconv.Itoa(p.Stock)})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"ID", "NAME", "CATEGORY", "PRICE", "STOCK"}, rows))
				return nil
			})
		},
	}
}
