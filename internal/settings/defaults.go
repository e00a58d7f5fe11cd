package settings

// DefaultMessage is the welcome message of a freshly created document.
const DefaultMessage = "Welcome to Kiss Coffee! Freshly brewed coffee and homemade treats just for you."

// Default returns the document created on first fetch when none exists.
func Default() Settings {
	return Settings{
		CustomMessage: DefaultMessage,
		OpeningHours: OpeningHours{
			MondayToFriday: "8am–5pm",
			Saturday:       "8am–3pm",
			Sunday:         "Closed",
		},
		Services: []string{ServiceDineIn, ServiceTakeaway},
		Menu: Menu{
			CategoryHotDrinks: {
				{Name: "Espresso", Price: "£2.50"},
				{Name: "Americano", Price: "£2.80"},
				{Name: "Cappuccino", Price: "£3.20"},
				{Name: "Latte", Price: "£3.50"},
				{Name: "Flat White", Price: "£3.60"},
				{Name: "Mocha", Price: "£3.80"},
				{Name: "Hot Chocolate", Price: "£3.40"},
				{Name: "Tea (Assorted)", Price: "£2.20"},
			},
			CategoryColdDrinks: {
				{Name: "Iced Coffee", Price: "£3.80"},
				{Name: "Iced Latte", Price: "£4.00"},
				{Name: "Iced Cappuccino", Price: "£4.00"},
				{Name: "Cold Brew", Price: "£4.20"},
				{Name: "Fruit Smoothie", Price: "£4.50"},
				{Name: "Sparkling Water", Price: "£1.80"},
				{Name: "Orange Juice", Price: "£3.00"},
			},
			CategorySweetTreats: {
				{Name: "Croissant", Price: "£2.80"},
				{Name: "Chocolate Brownie", Price: "£3.50"},
				{Name: "Banana Bread", Price: "£3.20"},
				{Name: "Scone with Clotted Cream", Price: "£3.80"},
				{Name: "Cheesecake Slice", Price: "£4.20"},
				{Name: "Cookie (Chocolate Chip)", Price: "£1.80"},
				{Name: "Cake of the Day", Price: "£4.50"},
			},
			CategorySavouryTreats: {
				{Name: "Breakfast Sandwich", Price: "£5.50"},
				{Name: "Club Sandwich", Price: "£6.50"},
				{Name: "Chicken & Avocado Wrap", Price: "£6.00"},
				{Name: "Quiche of the Day", Price: "£5.80"},
				{Name: "Soup of the Day", Price: "£4.80"},
				{Name: "Halloumi Salad", Price: "£7.00"},
				{Name: "Pastries (Savory)", Price: "£3.00"},
			},
		},
	}
}
