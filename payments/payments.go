package payments

import (
	"context"
	"fmt"
	"log"
	"strings"

	"signup-middleware/auth"
	"signup-middleware/config"
	"signup-middleware/erp"
	"signup-middleware/errs"
	"signup-middleware/models"
	"signup-middleware/store"

	"github.com/FusionAuth/go-client/pkg/fusionauth"
	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/client"
)

const stripeCustomerIDKey = "stripe_customer_id"

func stripeClient(app config.App) *client.API {
	sc := &client.API{}
	sc.Init(app.StripeSecretKey, nil)
	return sc
}

// IsUserSubscribed checks whether the user has an active subscription to
// the given product.
func IsUserSubscribed(ctx context.Context, app config.App, st *store.Store, user fusionauth.User, productID string) (bool, error) {
	sc := stripeClient(app)

	var existingStripeCustomerID string
	if !st.Get(ctx, store.Durable, user.Id, stripeCustomerIDKey, &existingStripeCustomerID) {
		return false, nil
	}

	// query stripe to find the user
	params := &stripe.CustomerParams{}
	params.AddExpand("subscriptions")
	customer, err := sc.Customers.Get(existingStripeCustomerID, params)
	if err != nil {
		return false, fmt.Errorf(
			"failed to get customer id %v: %v",
			existingStripeCustomerID,
			err.Error(),
		)
	}
	if customer.ID != existingStripeCustomerID {
		return false, fmt.Errorf(
			"customer id %v mismatched stripe customer id %v",
			existingStripeCustomerID,
			customer.ID,
		)
	}
	for _, sub := range customer.Subscriptions.Data {
		if sub.Plan.Product.ID == productID {
			return sub.Status == stripe.SubscriptionStatusActive, nil
		}
	}
	return false, nil
}

// PropagateUserToStripe ensures a stripe customer exists for the user and
// stores its id durably. Idempotent: a user that already has a customer id
// is left alone.
func PropagateUserToStripe(ctx context.Context, app config.App, st *store.Store, user fusionauth.User) (customerID string, err error) {
	sc := stripeClient(app)

	var existingStripeCustomerID string
	if st.Get(ctx, store.Durable, user.Id, stripeCustomerIDKey, &existingStripeCustomerID) && existingStripeCustomerID != "" {
		return existingStripeCustomerID, nil
	}

	customer, err := sc.Customers.New(&stripe.CustomerParams{
		Email: &user.Email,
		Name:  &user.FullName,
		Phone: &user.MobilePhone,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create new customer: %v", err.Error())
	}

	// push the customer's ID to the durable store immediately!
	log.Printf("new customer id: %v", customer.ID)
	st.Set(ctx, store.Durable, user.Id, stripeCustomerIDKey, customer.ID)

	return customer.ID, nil
}

// GetProducts pulls the configured products and their active prices from
// stripe. https://stripe.com/docs/api/products/retrieve
func GetProducts(app config.App) (products []models.ProductSummary, err error) {
	sc := stripeClient(app)
	params := &stripe.ProductParams{}
	for _, stripeProduct := range app.StripeProducts {
		product, err := sc.Products.Get(stripeProduct.ProductID, params)
		if err != nil {
			return products, fmt.Errorf(
				"failed to get product from stripe by id %v: %v",
				stripeProduct.ProductID,
				err.Error(),
			)
		}
		if !product.Active {
			continue
		}
		imageURL := ""
		if len(product.Images) > 0 {
			imageURL = product.Images[0]
		}

		// get all the prices now
		productPrices := []models.ProductPrice{}
		for _, priceID := range stripeProduct.PriceIDs {
			stripePrice, err := sc.Prices.Get(priceID, &stripe.PriceParams{})
			if err != nil {
				log.Printf(
					"failed to get price id %v for product id %v: %v",
					priceID,
					stripeProduct.ProductID,
					err.Error(),
				)
				continue
			}
			if !stripePrice.Active {
				continue
			}
			if stripePrice.Product == nil {
				log.Printf(
					"stripe price %v doesn't have corresponding product, skipping",
					stripePrice.ID,
				)
				continue
			}
			if stripePrice.Product.ID != stripeProduct.ProductID {
				log.Printf(
					"price id %v and product id %v mismatch, ignoring",
					stripePrice.ID,
					stripeProduct.ProductID,
				)
				continue
			}
			recurringInterval := ""
			recurringIntervalCount := int64(0)
			isSubscription := false
			if stripePrice.Recurring != nil {
				recurringInterval = string(stripePrice.Recurring.Interval)
				recurringIntervalCount = stripePrice.Recurring.IntervalCount
				isSubscription = true
			}
			priceStr := fmt.Sprintf("%.2f", stripePrice.UnitAmountDecimal/100.0)
			productPrices = append(productPrices, models.ProductPrice{
				ID:                     stripePrice.ID,
				ProductID:              stripeProduct.ProductID,
				IsSubscription:         isSubscription,
				RecurringInterval:      recurringInterval,
				RecurringIntervalCount: recurringIntervalCount,
				Price:                  stripePrice.UnitAmount,
				PriceDecimal:           stripePrice.UnitAmountDecimal,
				PriceStr:               priceStr,
				Currency:               string(stripePrice.Currency),
				Description:            stripePrice.Nickname,
			})
		}
		products = append(products, models.ProductSummary{
			ID:          stripeProduct.ProductID,
			Name:        product.Name,
			Description: product.Description,
			ImageURL:    imageURL,
			Prices:      productPrices,
		})
	}

	return products, nil
}

type CreateCheckoutSessionResponse struct {
	SessionID string `json:"id"`
}

// CreateCheckoutSession builds a stripe checkout session from the query.
// https://stripe.com/docs/api/checkout/sessions/create
// query params:
// - ids=csv price IDs from stripe
// - m=either "s" or "p" for subscription or one-time payment (no quotes)
func CreateCheckoutSession(c *gin.Context, app config.App) error {
	sc := stripeClient(app)
	products, err := GetProducts(app)
	if err != nil {
		return fmt.Errorf(
			"failed to retrieve products for checkout session: %v",
			err.Error(),
		)
	}
	params := &stripe.CheckoutSessionParams{
		PaymentMethodTypes: stripe.StringSlice([]string{
			"card",
		}),
		LineItems:  []*stripe.CheckoutSessionLineItemParams{},
		SuccessURL: stripe.String(app.StripePaymentSuccessURL),
		CancelURL:  stripe.String(app.StripePaymentCancelURL),
	}

	// populate the checkout with the provided price ids, if they exist;
	// otherwise add them all
	csvPriceIDs := c.Query("ids")
	priceIDs := strings.Split(csvPriceIDs, ",")
	if csvPriceIDs == "" {
		for _, stripeProduct := range app.StripeProducts {
			priceIDs = append(priceIDs, stripeProduct.PriceIDs...)
		}
	}
	priceMode := c.Query("m") // must be either "s" for subscription or "p" for one-time payment
	switch priceMode {
	case "p":
		params.Mode = stripe.String(string(stripe.CheckoutSessionModePayment))
	case "s":
		params.Mode = stripe.String(string(stripe.CheckoutSessionModeSubscription))
	default:
		return fmt.Errorf("priceMode query parameter was not set to either 'p' or 's'")
	}
	for _, product := range products {
		for _, price := range product.Prices {
			for _, queriedPriceID := range priceIDs {
				if queriedPriceID == price.ID {
					// skip prices that don't match the requested payment mode
					if priceMode == "s" && price.RecurringInterval == "" {
						break
					}
					if priceMode == "p" && price.RecurringInterval != "" {
						break
					}
					params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
						Price:    stripe.String(queriedPriceID),
						Quantity: stripe.Int64(1),
					})
					break
				}
			}
		}
	}

	session, err := sc.CheckoutSessions.New(params)
	if err != nil {
		return fmt.Errorf("session.New: %v", err.Error())
	}

	data := CreateCheckoutSessionResponse{
		SessionID: session.ID,
	}

	c.JSON(200, data)
	return nil
}

// RecordPayment mirrors a completed gateway charge into the ERP. The
// charge is already settled: an ERP failure here is surfaced as a partial
// failure for reconciliation, never as a rollback.
func RecordPayment(ctx context.Context, erpClient *erp.Client, customerID string, paymentID string, amountCents int64, currency string) error {
	_, err := erpClient.RecordPayment(ctx, customerID, map[string]interface{}{
		"paymentId": paymentID,
		"amount":    amountCents,
		"currency":  currency,
	})
	if err != nil {
		log.Printf(
			"payment %v for customer %v settled at the gateway but the erp record failed, flagging for reconciliation: %v",
			paymentID,
			customerID,
			err.Error(),
		)
		return errs.NewPartialFailureError(
			"your payment went through, but we couldn't update your billing records yet; no action is needed",
		)
	}
	return nil
}

// IsFieldMutable tests if the desired field can be changed according to
// whether the mutation request has sufficient privileges - system, user,
// subscriber.
func IsFieldMutable(ctx context.Context, app config.App, st *store.Store, mutation models.PostMutationBody) (bool, error) {
	if mutation.Key == app.MutationKey {
		return true, nil
	}

	if mutation.JWT != "" {
		user, err := auth.GetUserByJWT(app, mutation.JWT)
		if err != nil {
			return false, fmt.Errorf("failed to check user jwt during mutability check: %v", err.Error())
		}
		// check if the field is a system field
		for _, sysField := range app.MutableFields.System {
			if mutation.Field == sysField {
				return false, nil
			}
		}

		// check if the field is a user-only field
		for _, userField := range app.MutableFields.User {
			if mutation.Field == userField {
				return true, nil
			}
		}

		// check if the field is a subscriber-only field
		for _, subscriberField := range app.MutableFields.SubscriberOnly {
			if mutation.Field == subscriberField.Field {
				subbed, err := IsUserSubscribed(ctx, app, st, user, subscriberField.ProductID)
				if err != nil {
					return false, fmt.Errorf(
						"failed to check if user %v is subscribed to modify field %v for product id %v: %v",
						user.Id,
						mutation.Field,
						subscriberField.ProductID,
						err.Error(),
					)
				}
				return subbed, nil
			}
		}
	}

	return false, nil
}
