package handler_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"wishwell/internal/funding"
	"wishwell/internal/funding/handler"
	"wishwell/internal/platform/logger"
	"wishwell/internal/shipping"
	"wishwell/pkg/domain"
	"wishwell/pkg/testutil"
)

type stubCatalog struct{}

func (stubCatalog) ItemSnapshot(_ context.Context, productRef, variantRef string) (shipping.ItemRef, error) {
	return shipping.ItemRef{
		ProductRef:      productRef,
		VariantRef:      variantRef,
		Title:           "Espresso Machine",
		Quantity:        1,
		UnitPrice:       domain.Cents(15000),
		UnitWeightGrams: 4000,
		Currency:        domain.CurrencyUSD,
		Destination:     shipping.Destination{Kind: shipping.DestinationRecipient},
	}, nil
}

type HandlerSuite struct {
	suite.Suite
	router chi.Router
}

func (s *HandlerSuite) SetupTest() {
	svc := funding.NewService(funding.NewInMemory(), stubCatalog{}, nil, logger.Discard())
	s.router = chi.NewRouter()
	handler.New(svc, logger.Discard()).Register(s.router)
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func validStartRequest() handler.StartCampaignRequest {
	return handler.StartCampaignRequest{
		ProductRef: "prod-espresso",
		ShipTo: shipping.Address{
			Name: "Robin", Line1: "1 Registry Way", City: "Portland",
			PostalCode: "97201", Country: "US",
		},
		Organizer:            "Grace",
		OrganizerEmail:       "grace@example.com",
		TargetAmountCents:    15000,
		MinContributionCents: 500,
		Deadline:             time.Now().Add(72 * time.Hour),
	}
}

func (s *HandlerSuite) startCampaign() handler.CampaignResponse {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/campaigns", validStartRequest())
	rr := testutil.DoRequest(s.router, req)
	s.Require().Equal(http.StatusCreated, rr.Code, rr.Body.String())
	return *testutil.UnmarshalResponse[handler.CampaignResponse](s.T(), rr)
}

func (s *HandlerSuite) TestStartCampaign() {
	created := s.startCampaign()
	s.Equal("prod-espresso", created.ProductRef)
	s.Equal(int64(15000), created.TargetAmountCents)
	s.Equal(int64(15000), created.RemainingCents)
	s.Equal("active", created.Status)
}

func (s *HandlerSuite) TestStartCampaignRejectsBadEmail() {
	body := validStartRequest()
	body.OrganizerEmail = "not-an-email"
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/campaigns", body)
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "validation")
}

func (s *HandlerSuite) TestStartCampaignRejectsUnknownFields() {
	req := testutil.NewRequestWithBody(s.T(), http.MethodPost, "/campaigns",
		`{"product_ref":"p","bogus_field":true}`)
	rr := testutil.DoRequest(s.router, req)
	s.Equal(http.StatusBadRequest, rr.Code)
}

func (s *HandlerSuite) TestContribute() {
	created := s.startCampaign()

	req := testutil.NewJSONRequest(s.T(), http.MethodPost,
		"/campaigns/"+created.ID+"/contributions",
		handler.ContributeRequest{AmountCents: 5000, PaymentRef: "pay-1"})
	rr := testutil.DoRequest(s.router, req)
	s.Require().Equal(http.StatusCreated, rr.Code, rr.Body.String())

	contrib := testutil.UnmarshalResponse[handler.ContributionResponse](s.T(), rr)
	s.Equal(created.ID, contrib.CampaignID)
	s.Equal(int64(5000), contrib.AmountCents)
}

func (s *HandlerSuite) TestContributeBelowMinimum() {
	created := s.startCampaign()

	req := testutil.NewJSONRequest(s.T(), http.MethodPost,
		"/campaigns/"+created.ID+"/contributions",
		handler.ContributeRequest{AmountCents: 100, PaymentRef: "pay-1"})
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "below_minimum")
}

func (s *HandlerSuite) TestContributeOvershoot() {
	created := s.startCampaign()

	req := testutil.NewJSONRequest(s.T(), http.MethodPost,
		"/campaigns/"+created.ID+"/contributions",
		handler.ContributeRequest{AmountCents: 20000, PaymentRef: "pay-1"})
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, "exceeds_target")
}

func (s *HandlerSuite) TestContributeMalformedCampaignID() {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost,
		"/campaigns/not-a-uuid/contributions",
		handler.ContributeRequest{AmountCents: 5000, PaymentRef: "pay-1"})
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "invalid_input")
}

func (s *HandlerSuite) TestGetCampaignNotFound() {
	req := testutil.NewRequest(s.T(), http.MethodGet, "/campaigns/"+domain.NewCampaignID().String())
	rr := testutil.DoRequest(s.router, req)
	s.Equal(http.StatusNotFound, rr.Code)
}

func (s *HandlerSuite) TestProgress() {
	created := s.startCampaign()

	contribute := testutil.NewJSONRequest(s.T(), http.MethodPost,
		"/campaigns/"+created.ID+"/contributions",
		handler.ContributeRequest{AmountCents: 7500, PaymentRef: "pay-1"})
	s.Require().Equal(http.StatusCreated, testutil.DoRequest(s.router, contribute).Code)

	req := testutil.NewRequest(s.T(), http.MethodGet, "/campaigns/"+created.ID+"/progress")
	rr := testutil.DoRequest(s.router, req)
	s.Require().Equal(http.StatusOK, rr.Code)

	progress := testutil.UnmarshalResponse[funding.Progress](s.T(), rr)
	s.InDelta(50.0, progress.Percent, 0.01)
}

func (s *HandlerSuite) TestCancel() {
	created := s.startCampaign()

	req := testutil.NewRequest(s.T(), http.MethodPost, "/campaigns/"+created.ID+"/cancel")
	rr := testutil.DoRequest(s.router, req)
	s.Require().Equal(http.StatusOK, rr.Code)

	s.Run("cancelled campaign rejects contributions", func() {
		contribute := testutil.NewJSONRequest(s.T(), http.MethodPost,
			"/campaigns/"+created.ID+"/contributions",
			handler.ContributeRequest{AmountCents: 5000, PaymentRef: "pay-2"})
		rr := testutil.DoRequest(s.router, contribute)
		s.Equal(http.StatusConflict, rr.Code)
	})
}
