package model

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestProduct_Validate(t *testing.T) {
	valid := Product{
		ID:     1,
		Title:  "Backpack",
		Price:  109.95,
		Rating: Rating{Rate: 3.9, Count: 120},
	}

	tests := []struct {
		name    string
		mutate  func(p *Product)
		wantErr error
	}{
		{name: "valid product", mutate: func(_ *Product) {}, wantErr: nil},
		{name: "zero price", mutate: func(p *Product) { p.Price = 0 }, wantErr: nil},
		{name: "max rating", mutate: func(p *Product) { p.Rating.Rate = 5 }, wantErr: nil},
		{name: "zero id", mutate: func(p *Product) { p.ID = 0 }, wantErr: ErrInvalidProductID},
		{name: "negative id", mutate: func(p *Product) { p.ID = -3 }, wantErr: ErrInvalidProductID},
		{name: "empty title", mutate: func(p *Product) { p.Title = "" }, wantErr: ErrEmptyTitle},
		{name: "negative price", mutate: func(p *Product) { p.Price = -0.01 }, wantErr: ErrNegativePrice},
		{name: "rating above max", mutate: func(p *Product) { p.Rating.Rate = 5.1 }, wantErr: ErrRatingOutOfRange},
		{name: "rating below min", mutate: func(p *Product) { p.Rating.Rate = -1 }, wantErr: ErrRatingOutOfRange},
		{name: "negative count", mutate: func(p *Product) { p.Rating.Count = -1 }, wantErr: ErrNegativeCount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			p := valid
			tt.mutate(&p)

			// Act
			err := p.Validate()

			// Assert
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestProduct_JSONMatchesCatalogShape(t *testing.T) {
	// Arrange
	raw := `{"id":3,"title":"Mens Cotton Jacket","price":55.99,"description":"great",` +
		`"category":"men's clothing","image":"https://example.com/3.jpg","rating":{"rate":4.7,"count":500}}`

	// Act
	var p Product
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	// Assert
	if p.ID != 3 || p.Title != "Mens Cotton Jacket" || p.Price != 55.99 {
		t.Errorf("unexpected product: %+v", p)
	}
	if p.Category != "men's clothing" {
		t.Errorf("Category = %q, want men's clothing", p.Category)
	}
	if p.Rating.Rate != 4.7 || p.Rating.Count != 500 {
		t.Errorf("Rating = %+v, want {4.7 500}", p.Rating)
	}
}

func TestCartItem_JSONFlattensProduct(t *testing.T) {
	// Arrange
	item := CartItem{Product: Product{ID: 7, Title: "Ring", Price: 9.99}, Quantity: 2}

	// Act
	data, err := json.Marshal(item)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	// Assert
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if m["id"] != float64(7) {
		t.Errorf("id = %v, want 7", m["id"])
	}
	if m["quantity"] != float64(2) {
		t.Errorf("quantity = %v, want 2", m["quantity"])
	}
	if _, nested := m["Product"]; nested {
		t.Error("product fields should be flattened into the cart item")
	}
}

func TestPersistedState_HasNoSidebarFlag(t *testing.T) {
	// Act
	data, err := json.Marshal(PersistedState{Favorites: []int{1}})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	// Assert
	if strings.Contains(string(data), "isCartOpen") {
		t.Errorf("persisted state must not contain the sidebar flag: %s", data)
	}
	if !strings.Contains(string(data), `"favorites":[1]`) {
		t.Errorf("persisted state missing favorites: %s", data)
	}
}

func validCheckoutForm() CheckoutForm {
	return CheckoutForm{
		FirstName:  "John",
		LastName:   "Doe",
		Email:      "john.doe@example.com",
		Address:    "123 Premium Avenue",
		City:       "New York",
		State:      "NY",
		Zip:        "10001",
		CardNumber: "4242 4242 4242 4242",
		Expiry:     "12/29",
		CVC:        "123",
	}
}

func TestCheckoutForm_Validate(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(f *CheckoutForm)
		wantFields []string
	}{
		{name: "valid form", mutate: func(_ *CheckoutForm) {}},
		{
			name:   "optional fields may be empty",
			mutate: func(f *CheckoutForm) { f.Phone = ""; f.Apartment = "" },
		},
		{
			name:       "missing names",
			mutate:     func(f *CheckoutForm) { f.FirstName = " "; f.LastName = "" },
			wantFields: []string{"firstName", "lastName"},
		},
		{
			name:       "invalid email",
			mutate:     func(f *CheckoutForm) { f.Email = "john.doe@example" },
			wantFields: []string{"email"},
		},
		{
			name:       "card with letters",
			mutate:     func(f *CheckoutForm) { f.CardNumber = "4242-abcd-4242-4242" },
			wantFields: []string{"cardNumber"},
		},
		{
			name:       "card too short",
			mutate:     func(f *CheckoutForm) { f.CardNumber = "4242" },
			wantFields: []string{"cardNumber"},
		},
		{
			name:       "bad expiry and cvc",
			mutate:     func(f *CheckoutForm) { f.Expiry = "13/29"; f.CVC = "12" },
			wantFields: []string{"expiry", "cvc"},
		},
		{
			name: "empty form",
			mutate: func(f *CheckoutForm) {
				*f = CheckoutForm{}
			},
			wantFields: []string{
				"firstName", "lastName", "email", "address", "city",
				"state", "zip", "cardNumber", "expiry", "cvc",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			form := validCheckoutForm()
			tt.mutate(&form)

			// Act
			errs := form.Validate()

			// Assert
			if len(tt.wantFields) == 0 {
				if errs != nil {
					t.Fatalf("Validate() = %v, want nil", errs)
				}
				return
			}
			if len(errs) != len(tt.wantFields) {
				t.Fatalf("Validate() = %v, want fields %v", errs, tt.wantFields)
			}
			for _, field := range tt.wantFields {
				if _, ok := errs[field]; !ok {
					t.Errorf("missing error for field %q in %v", field, errs)
				}
			}
		})
	}
}

func TestCheckoutForm_RequiredWinsOverFormat(t *testing.T) {
	// Arrange
	form := validCheckoutForm()
	form.Email = ""

	// Act
	errs := form.Validate()

	// Assert
	if errs["email"] != "Email is required" {
		t.Errorf("email error = %q, want required message", errs["email"])
	}
}

func TestContactForm_Validate(t *testing.T) {
	tests := []struct {
		name string
		form ContactForm
		want FieldErrors
	}{
		{
			name: "valid",
			form: ContactForm{Name: "Ann", Email: "ann@example.com", Subject: "Order", Message: "Where is my order?"},
			want: nil,
		},
		{
			name: "all empty",
			form: ContactForm{},
			want: FieldErrors{
				"name":    "Name is required",
				"email":   "Email is required",
				"subject": "Subject is required",
				"message": "Message is required",
			},
		},
		{
			name: "invalid email and short message",
			form: ContactForm{Name: "Ann", Email: "ann at example", Subject: "Hi", Message: "  short  "},
			want: FieldErrors{
				"email":   "Please enter a valid email",
				"message": "Message must be at least 10 characters",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Act
			got := tt.form.Validate()

			// Assert
			if len(got) != len(tt.want) {
				t.Fatalf("Validate() = %v, want %v", got, tt.want)
			}
			for field, msg := range tt.want {
				if got[field] != msg {
					t.Errorf("field %q = %q, want %q", field, got[field], msg)
				}
			}
		})
	}
}

func TestFieldErrors_Error(t *testing.T) {
	// Arrange
	errs := FieldErrors{"zip": "ZIP code is required", "city": "City is required"}

	// Act
	msg := errs.Error()

	// Assert
	want := "validation failed: city: City is required; zip: ZIP code is required"
	if msg != want {
		t.Errorf("Error() = %q, want %q", msg, want)
	}

	var target FieldErrors
	if !errors.As(error(errs), &target) {
		t.Error("FieldErrors should be usable with errors.As")
	}
}

func TestWebSocketMessageConstructors(t *testing.T) {
	// Act
	results := NewSearchResultsMessage(4, "shirt", nil)
	cart := NewCartUpdatedMessage(CartView{Total: "60.00", ItemsCount: 3})
	errMsg := NewErrorMessage("boom")

	// Assert
	if results.Type != WSMessageTypeSearchResults || results.Seq != 4 || results.Query != "shirt" {
		t.Errorf("unexpected search results message: %+v", results)
	}
	if results.Products == nil {
		t.Error("search results should carry an empty, non-nil product list")
	}
	if cart.Type != WSMessageTypeCartUpdated || cart.Cart == nil || cart.Cart.ItemsCount != 3 {
		t.Errorf("unexpected cart message: %+v", cart)
	}
	if errMsg.Type != WSMessageTypeError || errMsg.Error != "boom" {
		t.Errorf("unexpected error message: %+v", errMsg)
	}
	for _, m := range []WebSocketMessage{results, cart, errMsg} {
		if m.Timestamp.IsZero() {
			t.Errorf("%s message has zero timestamp", m.Type)
		}
	}
}

func TestAPIResponse(t *testing.T) {
	// Act
	ok := NewSuccessResponse([]int{1, 2})
	failed := NewErrorResponse[[]int]("nope")

	// Assert
	if !ok.Success || len(ok.Data) != 2 || ok.Error != "" {
		t.Errorf("unexpected success response: %+v", ok)
	}
	if failed.Success || failed.Error != "nope" || failed.Data != nil {
		t.Errorf("unexpected error response: %+v", failed)
	}
}
