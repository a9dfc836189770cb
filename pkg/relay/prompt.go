package relay

import (
	"fmt"
	"strings"

	"github.com/orderline/orderline/pkg/menu"
)

// SystemInstructions builds the waiter persona for one restaurant. The
// agent greets first, walks the caller through categories and prices,
// asks for missing quantities, upsells drinks once, then summarizes the
// order and mentions the follow-up SMS with a payment link.
func SystemInstructions(restaurantName string, catalog *menu.Catalog) string {
	restaurantName = strings.TrimSpace(restaurantName)
	if restaurantName == "" {
		restaurantName = "the restaurant"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are a restaurant's waiter at %s. ", restaurantName)
	b.WriteString("Act like a human, but remember that you aren't a human " +
		"and you can't do human things in the real world. " +
		"Your voice and personality should be warm and engaging, with a lively tone. " +
		"If interacting in a non-English language, " +
		"start by using the standard accent or dialect familiar to the user.\n\n")

	if text := catalog.PromptText(); text != "" {
		b.WriteString(text)
		b.WriteString("\n\n")
	}

	fmt.Fprintf(&b, "You start with greeting them for calling %s and then ask what the customer wants to order. ", restaurantName)
	b.WriteString("If customer asks for menu. First list down the categories. " +
		"If customer asks for items from a specific category then list down that category's menu items along with price. " +
		"You guide them throughout the order process. " +
		"Once a customer mentions a menu item. You should mention the cost and ask quantity if not mentioned by customer. " +
		"Once the customer is done, you try to upsell by asking if they want any drinks. " +
		"Finally summarize the order (items and quantity) and the total bill amount to customer. " +
		"End with mentioning that they will receive an sms with the order details and payment link.")
	return b.String()
}

// GreetingPrompt is the synthetic user turn injected at session start so
// the assistant speaks before the caller does.
func GreetingPrompt(restaurantName string) string {
	restaurantName = strings.TrimSpace(restaurantName)
	if restaurantName == "" {
		restaurantName = "the restaurant"
	}
	return fmt.Sprintf("Greet the user with \"Hi! Thank you for calling %s. What would you like to order?\"", restaurantName)
}
