package wear

// CreateTxn builds the application-creation call that lists l.
// The creator is the sender; l.Creator is ignored.
func CreateTxn(sender Address, l *Listing) Txn {
	return Txn{
		Type:   TxnAppCall,
		Sender: sender,
		Note:   []byte(Marker),
		Args: [][]byte{
			l.Name,
			l.Description,
			l.Image,
			Itob(l.Amount),
			Itob(l.Stock),
			Itob(l.Discount),
		},
	}
}

// BuyGroup builds the linked pair that purchases one unit: the
// application call followed by a payment of price to the creator.
func BuyGroup(buyer Address, appID uint64, creator Address, price uint64) []Txn {
	txns := []Txn{
		{
			Type:   TxnAppCall,
			Sender: buyer,
			AppID:  appID,
			Args:   [][]byte{MethodBuy.Tag()},
		},
		{
			Type:     TxnPay,
			Sender:   buyer,
			Receiver: creator,
			Amount:   price,
		},
	}
	AssignGroup(txns)
	return txns
}

// ChangeDiscountTxn builds the call that sets a listing's discount.
func ChangeDiscountTxn(sender Address, appID, discount uint64) Txn {
	return Txn{
		Type:   TxnAppCall,
		Sender: sender,
		AppID:  appID,
		Args:   [][]byte{MethodChangeDiscount.Tag(), Itob(discount)},
	}
}

// UpdateStockTxn builds the call that sets a listing's stock.
func UpdateStockTxn(sender Address, appID, stock uint64) Txn {
	return Txn{
		Type:   TxnAppCall,
		Sender: sender,
		AppID:  appID,
		Args:   [][]byte{MethodUpdateStock.Tag(), Itob(stock)},
	}
}

// DeleteTxn builds the call that deletes an application.
func DeleteTxn(sender Address, appID uint64) Txn {
	return Txn{
		Type:         TxnAppCall,
		Sender:       sender,
		AppID:        appID,
		OnCompletion: DeleteApplication,
	}
}

// PayTxn builds a plain payment.
func PayTxn(sender, receiver Address, amount uint64) Txn {
	return Txn{
		Type:     TxnPay,
		Sender:   sender,
		Receiver: receiver,
		Amount:   amount,
	}
}
