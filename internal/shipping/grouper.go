package shipping

import (
	dErrors "wishwell/pkg/domain-errors"
)

// Group partitions cart items into shipment groups by resolved destination
// address. Deterministic: the same cart and addresses always produce the same
// groups in the same order (first-seen item order), which downstream
// idempotency keys depend on.
func GroupItems(items []ItemRef, ownerAddr, buyerAddr Address) ([]Group, error) {
	if len(items) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "cart has no items")
	}
	if err := ownerAddr.Validate(); err != nil {
		return nil, dErrors.Wrap(dErrors.CodeValidation, "owner address", err)
	}
	if err := buyerAddr.Validate(); err != nil {
		return nil, dErrors.Wrap(dErrors.CodeValidation, "buyer address", err)
	}

	byKey := make(map[string]*Group)
	var order []string

	for idx, item := range items {
		if item.Quantity <= 0 {
			return nil, dErrors.Newf(dErrors.CodeValidation, "item %q has non-positive quantity", item.Title)
		}
		addr, err := resolveDestination(item, idx, ownerAddr, buyerAddr)
		if err != nil {
			return nil, err
		}
		key := addr.Key()
		g, ok := byKey[key]
		if !ok {
			g = &Group{GroupKey: key, Address: addr}
			byKey[key] = g
			order = append(order, key)
		}
		g.Items = append(g.Items, item)
		g.TotalWeightGrams += item.WeightGrams()
		g.TotalValue += item.Value()
	}

	groups := make([]Group, 0, len(order))
	for _, key := range order {
		groups = append(groups, *byKey[key])
	}
	return groups, nil
}

func resolveDestination(item ItemRef, idx int, ownerAddr, buyerAddr Address) (Address, error) {
	switch item.Destination.Kind {
	case DestinationRecipient:
		return ownerAddr, nil
	case DestinationGiver:
		return buyerAddr, nil
	case DestinationCustom:
		if item.Destination.Custom == nil {
			return Address{}, dErrors.Newf(dErrors.CodeValidation,
				"item %d (%q) requires a custom address but has none", idx, item.Title)
		}
		addr := *item.Destination.Custom
		if err := addr.Validate(); err != nil {
			return Address{}, dErrors.Wrap(dErrors.CodeValidation,
				"custom address for item "+item.Title, err)
		}
		return addr, nil
	default:
		return Address{}, dErrors.Newf(dErrors.CodeValidation,
			"item %d (%q) has unknown destination kind %q", idx, item.Title, item.Destination.Kind)
	}
}
