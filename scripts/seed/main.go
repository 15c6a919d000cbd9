package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/storeledger/internal/app"
	"github.com/odyssey-erp/storeledger/internal/cash"
	"github.com/odyssey-erp/storeledger/internal/ledger"
	"github.com/odyssey-erp/storeledger/internal/masterdata"
	"github.com/odyssey-erp/storeledger/internal/platform/db"
	"github.com/odyssey-erp/storeledger/internal/purchases"
	"github.com/odyssey-erp/storeledger/internal/sales"
	"github.com/odyssey-erp/storeledger/internal/shared"
)

var seeder = ledger.Actor{Username: "seed", Role: ledger.RoleAdmin}

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := app.NewLogger(cfg)
	ctx := context.Background()
	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	if _, err := db.Migrate(ctx, pool); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	services := app.BuildServices(cfg, pool, nil, nil, logger)

	_, total, err := services.MasterData.ListProducts(ctx, masterdata.ListFilters{Page: shared.NewPage(0, 1)})
	if err != nil {
		log.Fatalf("list products: %v", err)
	}
	if total > 0 {
		fmt.Println("✓ Database already seeded, nothing to do")
		return
	}

	fmt.Println("→ Seeding opening cash...")
	if _, err := services.Cash.Deposit(ctx, cash.MovementInput{Amount: money("5000000"), Description: "Opening float", Actor: seeder}); err != nil {
		log.Fatalf("seed cash: %v", err)
	}

	fmt.Println("→ Seeding master data...")
	md, err := seedMasterData(ctx, services.MasterData)
	if err != nil {
		log.Fatalf("seed master data: %v", err)
	}

	fmt.Println("→ Seeding purchases...")
	if err := seedPurchases(ctx, services.Purchases, md); err != nil {
		log.Fatalf("seed purchases: %v", err)
	}

	fmt.Println("→ Seeding sales...")
	if err := seedSales(ctx, services.Sales, md); err != nil {
		log.Fatalf("seed sales: %v", err)
	}

	fmt.Println("✓ Seed complete at", time.Now().Format(time.RFC3339))
}

// =============================================================================
// MASTER DATA
// =============================================================================

type seeded struct {
	suppliers []int64
	customers []int64
	products  []masterdata.Product
}

func seedMasterData(ctx context.Context, svc *masterdata.Service) (seeded, error) {
	var out seeded

	categories := map[string]int64{}
	for _, name := range []string{"Beverages", "Snacks", "Household"} {
		c, err := svc.CreateCategory(ctx, masterdata.Category{Name: name}, seeder)
		if err != nil {
			return out, err
		}
		categories[name] = c.ID
	}

	suppliers := []masterdata.Party{
		{Name: "PT Sumber Makmur", Phone: "021-5550101", Address: "Jl. Gatot Subroto No. 12, Jakarta"},
		{Name: "CV Berkah Jaya", Phone: "022-5550202", Address: "Jl. Braga No. 8, Bandung"},
	}
	for _, p := range suppliers {
		s, err := svc.CreateParty(ctx, masterdata.EntitySupplier, p, seeder)
		if err != nil {
			return out, err
		}
		out.suppliers = append(out.suppliers, s.ID)
	}

	customers := []masterdata.Party{
		{Name: "Toko Sinar", Phone: "0812000111", Email: "sinar@example.com"},
		{Name: "Warung Bu Rina", Phone: "0812000222"},
		{Name: "Koperasi Sejahtera", Phone: "0812000333", Address: "Jl. Diponegoro No. 3, Surabaya"},
	}
	for _, p := range customers {
		c, err := svc.CreateParty(ctx, masterdata.EntityCustomer, p, seeder)
		if err != nil {
			return out, err
		}
		out.customers = append(out.customers, c.ID)
	}

	products := []struct {
		name     string
		category string
		supplier int
		buy      string
		sell     string
		min      int64
	}{
		{"Mineral Water 600ml", "Beverages", 0, "2500", "4000", 24},
		{"Iced Tea 350ml", "Beverages", 0, "3500", "5500", 24},
		{"Potato Chips 68g", "Snacks", 1, "7000", "10500", 12},
		{"Peanut Crackers", "Snacks", 1, "4500", "7000", 12},
		{"Dish Soap 800ml", "Household", 1, "12000", "16500", 6},
	}
	for _, p := range products {
		categoryID := categories[p.category]
		supplierID := out.suppliers[p.supplier]
		created, err := svc.CreateProduct(ctx, masterdata.Product{
			Name:          p.name,
			CategoryID:    &categoryID,
			SupplierID:    &supplierID,
			PurchasePrice: money(p.buy),
			SalePrice:     money(p.sell),
			MinQuantity:   p.min,
		}, seeder)
		if err != nil {
			return out, err
		}
		out.products = append(out.products, created)
	}
	return out, nil
}

// =============================================================================
// PURCHASES
// =============================================================================

func seedPurchases(ctx context.Context, svc *purchases.Service, md seeded) error {
	start := time.Now().AddDate(0, 0, -14)
	for i, supplierID := range md.suppliers {
		var items []purchases.LineInput
		total := decimal.Zero
		for _, p := range md.products {
			if p.SupplierID == nil || *p.SupplierID != supplierID {
				continue
			}
			price := p.PurchasePrice
			qty := p.MinQuantity * 4
			items = append(items, purchases.LineInput{ProductID: p.ID, Quantity: qty, UnitPrice: &price})
			total = total.Add(price.Mul(decimal.NewFromInt(qty)))
		}
		if len(items) == 0 {
			continue
		}
		id := supplierID
		_, err := svc.Create(ctx, purchases.Input{
			Items:         items,
			SupplierID:    &id,
			PurchaseDate:  start.AddDate(0, 0, i).Format("2006-01-02"),
			Paid:          total,
			PaymentMethod: "cash",
			Notes:         "Initial stock",
			Actor:         seeder,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// SALES
// =============================================================================

func seedSales(ctx context.Context, svc *sales.Service, md seeded) error {
	start := time.Now().AddDate(0, 0, -10)
	for day := 0; day < 10; day++ {
		p := md.products[day%len(md.products)]
		q := md.products[(day+2)%len(md.products)]
		items := []sales.LineInput{
			{ProductID: p.ID, Quantity: int64(day%3 + 1)},
			{ProductID: q.ID, Quantity: 2},
		}
		total := p.SalePrice.Mul(decimal.NewFromInt(int64(day%3 + 1))).Add(q.SalePrice.Mul(decimal.NewFromInt(2)))
		input := sales.Input{
			Items:         items,
			SaleDate:      start.AddDate(0, 0, day).Format("2006-01-02"),
			Paid:          total,
			PaymentMethod: "cash",
			Actor:         ledger.Actor{Username: "cashier", Role: ledger.RoleCashier},
		}
		if day%2 == 0 {
			id := md.customers[day%len(md.customers)]
			input.CustomerID = &id
		}
		if _, err := svc.Create(ctx, input); err != nil {
			return err
		}
	}
	return nil
}

func money(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}
