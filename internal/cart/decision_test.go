package cart

import (
	"testing"

	"github.com/google/uuid"

	"github.com/shoplane/shoplane-backend/pkg/db/models"
)

func TestDecide(t *testing.T) {
	t.Parallel()

	emptyGuest := &models.Cart{ID: uuid.New()}
	fullGuest := &models.Cart{ID: uuid.New(), Items: []models.CartItem{{VariantID: uuid.New(), Quantity: 1}}}
	emptyUser := &models.Cart{ID: uuid.New()}
	fullUser := &models.Cart{ID: uuid.New(), Items: []models.CartItem{{VariantID: uuid.New(), Quantity: 2}}}

	cases := []struct {
		name  string
		guest *models.Cart
		user  *models.Cart
		want  MergeAction
	}{
		{"neither cart exists", nil, nil, ActionCreateUserCart},
		{"only user cart exists", nil, fullUser, ActionUseUserCart},
		{"only guest cart exists", fullGuest, nil, ActionAdoptGuestCart},
		{"both exist, guest empty", emptyGuest, fullUser, ActionDropGuestCart},
		{"both exist, user empty", fullGuest, emptyUser, ActionMergeCarts},
		{"both exist, both populated", fullGuest, fullUser, ActionMergeCarts},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := Decide(tc.guest, tc.user); got != tc.want {
				t.Fatalf("expected action %d, got %d", tc.want, got)
			}
		})
	}
}

func TestMergedQuantity(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		existing int
		incoming int
		stock    int
		want     int
	}{
		{"sum within stock", 2, 3, 10, 5},
		{"sum capped at stock", 4, 4, 6, 6},
		{"no stock drops the line", 2, 3, 0, 0},
		{"negative stock drops the line", 1, 1, -1, 0},
		{"exact fit", 3, 2, 5, 5},
	}
	for _, tc := range cases {
		if got := mergedQuantity(tc.existing, tc.incoming, tc.stock); got != tc.want {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.want, got)
		}
	}
}
