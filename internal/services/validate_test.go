package services

import (
	"testing"

	"github.com/rentify/rentify-go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDigitFieldsRejectSignsAndDecimals(t *testing.T) {
	cases := []struct {
		contact, pincode string
		field            string
	}{
		{"-123456789", "411001", "contact"},
		{"+123456789", "411001", "contact"},
		{"12345.6789", "411001", "contact"},
		{"9876543210", "1.2345", "pincode"},
		{"9876543210", "-12345", "pincode"},
		{"9876543210", "+41100", "pincode"},
	}

	valid := validRegistration("buyer")
	valid.Email = "meera@example.com"

	for _, tc := range cases {
		req := valid
		req.Contact = tc.contact
		req.Pincode = tc.pincode
		err := validateStruct(req)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr, "%s/%s", tc.contact, tc.pincode)
		assert.Equal(t, tc.field, verr.Field)
		assert.Contains(t, verr.Message, "digits")
	}

	assert.NoError(t, validateStruct(valid))
}

func TestProfileAndCodeFieldsAreDigitsOnly(t *testing.T) {
	var verr *ValidationError

	err := validateStruct(models.UpdateBuyerProfileRequest{
		Contact:      "9876543210",
		AddressInput: models.AddressInput{Pincode: "-12345"},
	})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "pincode", verr.Field)

	err = validateStruct(models.UpdateSellerProfileRequest{
		StoreName: "Rao Rentals", Building: "5 FC Road", Taluka: "Haveli",
		City: "Pune", State: "Maharashtra", Pincode: "4110.4",
	})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "pincode", verr.Field)

	err = validateStruct(models.VerifyCodeRequest{Email: "asha@example.com", Code: "+12345"})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "otp", verr.Field)
}
