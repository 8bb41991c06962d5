package dbtest

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Listing is a seeded store with one purchasable size.
type Listing struct {
	Seller        models.User
	Store         models.Store
	Product       models.Product
	ProductItem   models.ProductItem
	AvailableItem models.AvailableItem
}

// SeedUser inserts a user with the given role.
func SeedUser(t *testing.T, conn *gorm.DB, role enums.Role) models.User {
	t.Helper()
	id := uuid.New()
	user := models.User{
		ID:        id,
		Email:     id.String() + "@example.com",
		FirstName: "Test",
		LastName:  string(role),
		Role:      role,
	}
	require.NoError(t, conn.Create(&user).Error)
	return user
}

// SeedListing inserts a seller, store, product, product item and an
// available item with the given stock and price.
func SeedListing(t *testing.T, conn *gorm.DB, stock int, price string) Listing {
	t.Helper()

	seller := SeedUser(t, conn, enums.RoleSeller)
	store := models.Store{UserID: seller.ID, Name: "Store " + seller.ID.String()[:8], Email: seller.Email}
	require.NoError(t, conn.Create(&store).Error)

	product := models.Product{StoreID: store.ID, Name: "Linen shirt"}
	require.NoError(t, conn.Create(&product).Error)

	item := models.ProductItem{ProductID: product.ID, Name: "Blue"}
	require.NoError(t, conn.Create(&item).Error)

	amount := decimal.RequireFromString(price)
	available := models.AvailableItem{
		ProductItemID: item.ID,
		Size:          "M",
		NumInStock:    stock,
		OriginalPrice: amount,
		CurrentPrice:  amount,
	}
	require.NoError(t, conn.Create(&available).Error)

	return Listing{
		Seller:        seller,
		Store:         store,
		Product:       product,
		ProductItem:   item,
		AvailableItem: available,
	}
}

// SeedOrder inserts an order in the given status with one item per
// listing/quantity pair.
func SeedOrder(t *testing.T, conn *gorm.DB, userID uuid.UUID, status enums.OrderStatus, lines map[*Listing]int) models.Order {
	t.Helper()

	order := models.Order{UserID: userID, Status: status}
	require.NoError(t, conn.Create(&order).Error)

	for listing, qty := range lines {
		item := models.OrderItem{
			OrderID:         order.ID,
			StoreID:         listing.Store.ID,
			ProductID:       listing.Product.ID,
			ProductItemID:   listing.ProductItem.ID,
			AvailableItemID: listing.AvailableItem.ID,
			ProductName:     listing.Product.Name,
			Quantity:        qty,
			UnitPrice:       listing.AvailableItem.CurrentPrice,
		}
		require.NoError(t, conn.Create(&item).Error)
		order.Items = append(order.Items, item)
	}
	return order
}

// StockOf reloads the current stock of an available item.
func StockOf(t *testing.T, conn *gorm.DB, availableItemID uuid.UUID) int {
	t.Helper()
	var item models.AvailableItem
	require.NoError(t, conn.First(&item, "id = ?", availableItemID).Error)
	return item.NumInStock
}

// StatusOf reloads the current status of an order.
func StatusOf(t *testing.T, conn *gorm.DB, orderID uuid.UUID) enums.OrderStatus {
	t.Helper()
	var order models.Order
	require.NoError(t, conn.First(&order, "id = ?", orderID).Error)
	return order.Status
}
