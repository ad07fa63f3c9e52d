package domain

// OrderBook is a snapshot of one side-by-side bid/ask ladder for a
// (symbol, venue) pair at a point in time.
type OrderBook struct {
	Symbol string
	Venue  string
	Bids   []BookEntry // sorted high to low
	Asks   []BookEntry // sorted low to high
}

// BookEntry is one price level.
type BookEntry struct {
	Price float64
	Size  float64 // base units
}

// BestBid returns the best (highest) bid price, or 0 if the book is empty.
func (ob OrderBook) BestBid() float64 {
	if len(ob.Bids) == 0 {
		return 0
	}
	return ob.Bids[0].Price
}

// BestAsk returns the best (lowest) ask price, or 0 if the book is empty.
func (ob OrderBook) BestAsk() float64 {
	if len(ob.Asks) == 0 {
		return 0
	}
	return ob.Asks[0].Price
}

// Midpoint returns (bestBid+bestAsk)/2, or 0 if either side is empty.
func (ob OrderBook) Midpoint() float64 {
	bid, ask := ob.BestBid(), ob.BestAsk()
	if bid == 0 || ask == 0 {
		return 0
	}
	return (bid + ask) / 2
}

// SpreadBps returns the bid-ask spread in basis points of the midpoint.
func (ob OrderBook) SpreadBps() float64 {
	mid := ob.Midpoint()
	if mid <= 0 {
		return 0
	}
	return (ob.BestAsk() - ob.BestBid()) / mid * 10000
}

// BidDepthUsd sums price*size across all bid levels.
func (ob OrderBook) BidDepthUsd() float64 {
	var total float64
	for _, b := range ob.Bids {
		total += b.Price * b.Size
	}
	return total
}

// AskDepthUsd sums price*size across all ask levels.
func (ob OrderBook) AskDepthUsd() float64 {
	var total float64
	for _, a := range ob.Asks {
		total += a.Price * a.Size
	}
	return total
}

// BestBidAsk is the minimal quote an adapter may expose cheaply.
type BestBidAsk struct {
	BestBid float64
	BestAsk float64
}
