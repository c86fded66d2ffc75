package models

const (
	PlatformWindow         = "Window"
	PlatformUberEats       = "Uber Eats"
	PlatformMrDFood        = "Mr D Food"
	PlatformBoltFood       = "Bolt Food"
	PlatformCustomerPickup = "Customer Pickup"
	PlatformOther          = "Other"
)

// Platforms lists the channels offered by the order-entry form. Stored orders
// may carry any free-text platform.
var Platforms = []string{
	PlatformWindow,
	PlatformUberEats,
	PlatformMrDFood,
	PlatformBoltFood,
	PlatformCustomerPickup,
	PlatformOther,
}
