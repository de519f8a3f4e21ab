package pricing

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awspricing "github.com/aws/aws-sdk-go-v2/service/pricing"
	awstypes "github.com/aws/aws-sdk-go-v2/service/pricing/types"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"se-assistant/pkg/api"
	"se-assistant/pkg/units"
)

// ProductsAPI is the subset of the AWS Price List API the client uses.
type ProductsAPI interface {
	GetProducts(ctx context.Context, params *awspricing.GetProductsInput, optFns ...func(*awspricing.Options)) (*awspricing.GetProductsOutput, error)
}

// AWSClient searches the AWS Price List API.
type AWSClient struct {
	api      ProductsAPI
	maxPages int
	logger   zerolog.Logger
}

// NewAWSClient loads the default AWS credential chain. The Price List API is
// only served from a few regions; us-east-1 is the usual choice.
func NewAWSClient(ctx context.Context, region string) (*AWSClient, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewAWSClientWithAPI(awspricing.NewFromConfig(cfg)), nil
}

// NewAWSClientWithAPI wraps an existing Price List API implementation.
func NewAWSClientWithAPI(products ProductsAPI) *AWSClient {
	return &AWSClient{
		api:      products,
		maxPages: 5,
		logger:   log.Logger.With().Str("component", "aws-prices").Logger(),
	}
}

// Search returns on-demand USD prices for serviceCode (for example
// "AmazonEC2") matching every TERM_MATCH filter, at most MaxItems records.
func (c *AWSClient) Search(ctx context.Context, serviceCode string, filters map[string]string) ([]api.PriceRecord, error) {
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	input := &awspricing.GetProductsInput{
		ServiceCode:   aws.String(serviceCode),
		FormatVersion: aws.String("aws_v1"),
	}
	for _, k := range keys {
		input.Filters = append(input.Filters, awstypes.Filter{
			Field: aws.String(k),
			Type:  awstypes.FilterTypeTermMatch,
			Value: aws.String(filters[k]),
		})
	}

	records := make([]api.PriceRecord, 0)
	for page := 0; page < c.maxPages; page++ {
		out, err := c.api.GetProducts(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("aws get products: %w", err)
		}
		for _, doc := range out.PriceList {
			for _, rec := range ParsePriceList(doc) {
				if rec.ServiceName == "" {
					rec.ServiceName = serviceCode
				}
				records = append(records, rec)
				if len(records) >= MaxItems {
					return records, nil
				}
			}
		}
		if out.NextToken == nil || *out.NextToken == "" {
			break
		}
		input.NextToken = out.NextToken
	}

	c.logger.Debug().Str("service", serviceCode).Int("records", len(records)).Msg("aws price search complete")
	return records, nil
}

// ParsePriceList flattens one AWS price list document into records, one per
// on-demand price dimension with a USD price.
func ParsePriceList(doc string) []api.PriceRecord {
	if !gjson.Valid(doc) {
		return nil
	}

	product := gjson.Get(doc, "product")
	attrs := product.Get("attributes")
	productName := attrs.Get("instanceType").String()
	if productName == "" {
		productName = product.Get("productFamily").String()
	}
	region := attrs.Get("regionCode").String()
	if region == "" {
		region = attrs.Get("location").String()
	}

	var out []api.PriceRecord
	gjson.Get(doc, "terms.OnDemand").ForEach(func(_, term gjson.Result) bool {
		term.Get("priceDimensions").ForEach(func(_, dim gjson.Result) bool {
			usd := dim.Get("pricePerUnit.USD")
			if !usd.Exists() {
				return true
			}
			price, err := strconv.ParseFloat(usd.String(), 64)
			if err != nil {
				return true
			}
			out = append(out, api.PriceRecord{
				ServiceName:   attrs.Get("servicecode").String(),
				SKUName:       product.Get("sku").String(),
				Region:        region,
				UnitPrice:     price,
				UnitOfMeasure: dim.Get("unit").String(),
				RetailPrice:   price,
				CurrencyCode:  units.DefaultCurrency,
				ProductName:   productName,
				MeterName:     dim.Get("description").String(),
			})
			return true
		})
		return true
	})
	return out
}
