package logger

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// CloudWatch rejects larger PutMetricData batches.
const maxDatumsPerPut = 1000

type cloudWatch struct {
	mu        sync.RWMutex
	client    *cloudwatch.Client
	namespace string
	dashboard string
}

var cw = &cloudWatch{namespace: "FundingFlow", dashboard: "FundingFlow"}

// SourceOutcome is one exchange's part of a cycle.
type SourceOutcome struct {
	Exchange string
	Records  int
	Failed   bool
}

// CycleSummary is what one poll cycle publishes to CloudWatch.
type CycleSummary struct {
	Duration      time.Duration
	Opportunities int
	BestSpread    float64
	Sources       []SourceOutcome
}

// InitCloudWatch creates the CloudWatch client and puts the monitor
// dashboard. An empty region falls back to AWS_REGION. On failure
// publishing stays disabled.
func InitCloudWatch(region, namespace, dashboard string) {
	log := GetLogger().WithComponent("cloudwatch")

	if region == "" {
		region = os.Getenv("AWS_REGION")
	}

	ctx := context.Background()
	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		log.WithError(err).Warn("failed to load AWS configuration; CloudWatch metrics disabled")
		return
	}

	cw.mu.Lock()
	cw.client = cloudwatch.NewFromConfig(awsCfg)
	if namespace != "" {
		cw.namespace = namespace
	}
	if dashboard != "" {
		cw.dashboard = dashboard
	}
	ns := cw.namespace
	cw.mu.Unlock()

	log.WithFields(Fields{"region": region, "namespace": ns}).Info("initialized CloudWatch client")
	putDashboard(ctx)
}

func (c *cloudWatch) snapshot() (*cloudwatch.Client, string, string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.client, c.namespace, c.dashboard
}

// publishMetrics sends data in batches when a client is configured.
func publishMetrics(ctx context.Context, data []cwtypes.MetricDatum) {
	client, namespace, _ := cw.snapshot()
	if client == nil || len(data) == 0 {
		return
	}
	for len(data) > 0 {
		n := min(len(data), maxDatumsPerPut)
		if _, err := client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
			Namespace:  aws.String(namespace),
			MetricData: data[:n],
		}); err != nil {
			GetLogger().WithComponent("cloudwatch").WithError(err).Warn("failed to publish CloudWatch metrics")
			return
		}
		data = data[n:]
	}
}

// PublishCycle sends the cycle totals plus per-exchange records and
// failures dimensioned by exchange.
func PublishCycle(ctx context.Context, s CycleSummary) {
	publishMetrics(ctx, cycleDatums(s))
}

func cycleDatums(s CycleSummary) []cwtypes.MetricDatum {
	data := []cwtypes.MetricDatum{
		{MetricName: aws.String("CycleDurationMs"), Unit: cwtypes.StandardUnitMilliseconds, Value: aws.Float64(float64(s.Duration.Milliseconds()))},
		{MetricName: aws.String("Opportunities"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(s.Opportunities))},
		{MetricName: aws.String("BestSpreadPercent"), Unit: cwtypes.StandardUnitNone, Value: aws.Float64(s.BestSpread)},
	}
	for _, src := range s.Sources {
		dims := []cwtypes.Dimension{{Name: aws.String("exchange"), Value: aws.String(src.Exchange)}}
		failed := 0.0
		if src.Failed {
			failed = 1
		}
		data = append(data,
			cwtypes.MetricDatum{MetricName: aws.String("SourceRecords"), Dimensions: dims, Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(src.Records))},
			cwtypes.MetricDatum{MetricName: aws.String("SourceFailed"), Dimensions: dims, Unit: cwtypes.StandardUnitCount, Value: aws.Float64(failed)},
		)
	}
	return data
}

type dashboardWidget struct {
	Type       string           `json:"type"`
	Width      int              `json:"width"`
	Height     int              `json:"height"`
	Properties widgetProperties `json:"properties"`
}

type widgetProperties struct {
	Metrics [][]string `json:"metrics,omitempty"`
	Period  int        `json:"period"`
	Stat    string     `json:"stat"`
	Title   string     `json:"title"`
	Region  string     `json:"region,omitempty"`
}

func dashboardBody(namespace string) ([]byte, error) {
	widgets := []dashboardWidget{
		{Type: "metric", Width: 12, Height: 6, Properties: widgetProperties{
			Metrics: [][]string{{namespace, "Opportunities"}, {namespace, "BestSpreadPercent"}},
			Period:  60, Stat: "Maximum", Title: "Opportunities",
		}},
		{Type: "metric", Width: 12, Height: 6, Properties: widgetProperties{
			Metrics: [][]string{{namespace, "CycleDurationMs"}},
			Period:  60, Stat: "Average", Title: "Cycle duration",
		}},
		{Type: "metric", Width: 24, Height: 6, Properties: widgetProperties{
			Metrics: [][]string{{namespace, "FetchFailures"}, {namespace, "CPUPercent"}, {namespace, "MemoryMB"}},
			Period:  60, Stat: "Maximum", Title: "Runtime",
		}},
	}
	return json.Marshal(map[string]interface{}{"widgets": widgets})
}

func putDashboard(ctx context.Context) {
	client, namespace, name := cw.snapshot()
	if client == nil {
		return
	}
	body, err := dashboardBody(namespace)
	if err != nil {
		return
	}
	if _, err := client.PutDashboard(ctx, &cloudwatch.PutDashboardInput{
		DashboardName: aws.String(name),
		DashboardBody: aws.String(string(body)),
	}); err != nil {
		GetLogger().WithComponent("cloudwatch").WithError(err).Warn("failed to put CloudWatch dashboard")
	}
}
