package pricing

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awspricing "github.com/aws/aws-sdk-go-v2/service/pricing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const ec2PriceDoc = `{
  "product": {
    "productFamily": "Compute Instance",
    "sku": "ABC123",
    "attributes": {
      "servicecode": "AmazonEC2",
      "instanceType": "t3.micro",
      "regionCode": "us-east-1",
      "location": "US East (N. Virginia)"
    }
  },
  "terms": {
    "OnDemand": {
      "ABC123.JRTCKXETXF": {
        "priceDimensions": {
          "ABC123.JRTCKXETXF.6YS6EN2CT7": {
            "unit": "Hrs",
            "description": "$0.0104 per On Demand Linux t3.micro Instance Hour",
            "pricePerUnit": {"USD": "0.0104000000"}
          }
        }
      }
    }
  }
}`

type mockProductsAPI struct {
	mock.Mock
}

func (m *mockProductsAPI) GetProducts(ctx context.Context, params *awspricing.GetProductsInput, optFns ...func(*awspricing.Options)) (*awspricing.GetProductsOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*awspricing.GetProductsOutput)
	return out, args.Error(1)
}

func TestParsePriceList(t *testing.T) {
	records := ParsePriceList(ec2PriceDoc)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, "AmazonEC2", rec.ServiceName)
	assert.Equal(t, "ABC123", rec.SKUName)
	assert.Equal(t, "us-east-1", rec.Region)
	assert.Equal(t, "t3.micro", rec.ProductName)
	assert.Equal(t, "Hrs", rec.UnitOfMeasure)
	assert.Equal(t, "USD", rec.CurrencyCode)
	assert.InDelta(t, 0.0104, rec.UnitPrice, 1e-9)

	assert.Nil(t, ParsePriceList("{not json"))
	assert.Empty(t, ParsePriceList(`{"product": {"sku": "X"}, "terms": {}}`))
}

func TestAWSSearchFollowsPages(t *testing.T) {
	api := &mockProductsAPI{}
	api.On("GetProducts", mock.Anything, mock.MatchedBy(func(in *awspricing.GetProductsInput) bool {
		return in.NextToken == nil
	})).Return(&awspricing.GetProductsOutput{
		PriceList: []string{ec2PriceDoc},
		NextToken: aws.String("page-2"),
	}, nil).Once()
	api.On("GetProducts", mock.Anything, mock.MatchedBy(func(in *awspricing.GetProductsInput) bool {
		return in.NextToken != nil && *in.NextToken == "page-2"
	})).Return(&awspricing.GetProductsOutput{
		PriceList: []string{ec2PriceDoc},
	}, nil).Once()

	client := NewAWSClientWithAPI(api)
	records, err := client.Search(context.Background(), "AmazonEC2", map[string]string{
		"regionCode":   "us-east-1",
		"instanceType": "t3.micro",
	})
	require.NoError(t, err)
	assert.Len(t, records, 2)
	api.AssertExpectations(t)

	call := api.Calls[0].Arguments.Get(1).(*awspricing.GetProductsInput)
	require.Len(t, call.Filters, 2)
	assert.Equal(t, "instanceType", aws.ToString(call.Filters[0].Field))
	assert.Equal(t, "regionCode", aws.ToString(call.Filters[1].Field))
}

func TestAWSSearchError(t *testing.T) {
	api := &mockProductsAPI{}
	api.On("GetProducts", mock.Anything, mock.Anything).Return(nil, errors.New("access denied"))

	_, err := NewAWSClientWithAPI(api).Search(context.Background(), "AmazonEC2", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
}
