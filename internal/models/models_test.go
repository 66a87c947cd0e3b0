package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAccountRole(t *testing.T) {
	assert.Equal(t, RoleBuyer, (&Account{IsBuyer: true}).Role())
	assert.Equal(t, RoleSeller, (&Account{IsSeller: true}).Role())
	assert.Equal(t, "", (&Account{}).Role())
}

func TestClothConditionValid(t *testing.T) {
	for _, c := range []ClothCondition{ConditionNew, ConditionLikeNew, ConditionGood, ConditionFair} {
		assert.True(t, c.Valid(), c)
	}
	assert.False(t, ClothCondition("torn").Valid())
	assert.False(t, ClothCondition("").Valid())
}

func TestAddressFull(t *testing.T) {
	addr := &Address{Building: "12 MG Road", Taluka: "Haveli", City: "Pune", State: "Maharashtra", Pincode: "411001"}
	assert.Equal(t, "12 MG Road, Haveli, Pune, Maharashtra, 411001", addr.Full())

	var none *Address
	assert.Equal(t, "", none.Full())
}

func TestOrderID(t *testing.T) {
	r := RentalRequest{ID: 42}
	assert.Equal(t, "RENT42", r.OrderID())
}

func TestAddressInputEmpty(t *testing.T) {
	assert.True(t, AddressInput{}.Empty())
	assert.False(t, AddressInput{City: "Pune"}.Empty())
}

func TestClothAvailability(t *testing.T) {
	assert.True(t, (&Cloth{Quantity: 1}).IsAvailable())
	assert.False(t, (&Cloth{Quantity: 0}).IsAvailable())
}
