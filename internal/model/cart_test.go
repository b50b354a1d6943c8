package model

import (
	"encoding/json"
	"testing"
)

func TestSnapshotFind(t *testing.T) {
	s := Snapshot{
		{ProductID: 1, ProductName: "Amber Musk", Quantity: 2},
		{ProductID: 7, ProductName: "Cedar Oud", Quantity: 1},
	}

	line, ok := s.Find(7)
	if !ok {
		t.Fatal("Find(7) not found")
	}
	if line.ProductName != "Cedar Oud" {
		t.Errorf("ProductName = %q, want Cedar Oud", line.ProductName)
	}

	if _, ok := s.Find(99); ok {
		t.Error("Find(99) should report missing")
	}
}

func TestSnapshotCloneIsIndependent(t *testing.T) {
	s := Snapshot{{ProductID: 1, Quantity: 2}}
	c := s.Clone()
	c[0].Quantity = 9

	if s[0].Quantity != 2 {
		t.Errorf("original mutated through clone: Quantity = %d", s[0].Quantity)
	}

	var nilSnap Snapshot
	if got := nilSnap.Clone(); got == nil || len(got) != 0 {
		t.Errorf("Clone(nil) = %#v, want empty non-nil", got)
	}
}

func TestEnvelopeDecodesCartResponse(t *testing.T) {
	// Shape returned by GET /cart
	body := `{
		"success": true,
		"message": "Cart retrieved",
		"data": {
			"items": [{
				"userId": 3,
				"productId": 42,
				"quantity": 2,
				"addedAt": "2025-05-01T10:00:00",
				"productName": "Velvet Rose",
				"productPhoto": "rose.png",
				"productPrice": 450.5,
				"availableStock": 5,
				"totalPrice": 901
			}],
			"totalItems": 2,
			"totalPrice": 901
		}
	}`

	var env Envelope[CartData]
	if err := json.Unmarshal([]byte(body), &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !env.Success {
		t.Error("Success = false, want true")
	}
	if len(env.Data.Items) != 1 {
		t.Fatalf("items = %d, want 1", len(env.Data.Items))
	}
	item := env.Data.Items[0]
	if item.ProductID != 42 || item.Quantity != 2 || item.AvailableStock != 5 {
		t.Errorf("item = %+v", item)
	}
	if item.TotalPrice != 901 {
		t.Errorf("TotalPrice = %v, want 901 (server value)", item.TotalPrice)
	}
}
