package docstore

import (
	"context"
	"fmt"
	"io"

	"github.com/cockroachdb/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Methods are the HTTP methods counted by LogStatistics, in report order.
var Methods = []string{"GET", "POST", "PUT", "PATCH", "DELETE"}

// TopIPLimit is how many addresses LogStatistics reports.
const TopIPLimit = 10

type MethodCount struct {
	Method string `json:"method"`
	Count  int64  `json:"count"`
}

type IPCount struct {
	IP    string `json:"ip"`
	Count int64  `json:"count"`
}

// LogStats summarizes an nginx access log collection.
type LogStats struct {
	Total       int64         `json:"total"`
	Methods     []MethodCount `json:"methods"`
	StatusCheck int64         `json:"statusCheck"`
	TopIPs      []IPCount     `json:"topIps"`
}

// LogStatistics counts the log entries in total, per method and for GET
// /status, and reports the most frequent client addresses.
func LogStatistics(ctx context.Context, c Collection) (*LogStats, error) {
	var stats LogStats
	var err error
	if stats.Total, err = c.CountDocuments(ctx, bson.M{}); err != nil {
		return nil, errors.Wrap(err, "error counting logs")
	}
	for _, method := range Methods {
		count, err := c.CountDocuments(ctx, bson.M{"method": method})
		if err != nil {
			return nil, errors.Wrapf(err, "error counting %s logs", method)
		}
		stats.Methods = append(stats.Methods, MethodCount{method, count})
	}
	if stats.StatusCheck, err = c.CountDocuments(ctx, bson.M{"method": "GET", "path": "/status"}); err != nil {
		return nil, errors.Wrap(err, "error counting status checks")
	}
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.D{{Key: "_id", Value: "$ip"}, {Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}}}}},
		{{Key: "$sort", Value: bson.D{{Key: "count", Value: -1}}}},
		{{Key: "$limit", Value: TopIPLimit}},
	}
	groups, err := c.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, errors.Wrap(err, "error aggregating ips")
	}
	for _, group := range groups {
		count, _ := toFloat(group["count"])
		ip := ""
		if group["_id"] != nil {
			ip = fmt.Sprint(group["_id"])
		}
		stats.TopIPs = append(stats.TopIPs, IPCount{IP: ip, Count: int64(count)})
	}
	return &stats, nil
}

// Count returns the count recorded for method, or zero for a method that is not tracked.
func (s *LogStats) Count(method string) int64 {
	for _, m := range s.Methods {
		if m.Method == method {
			return m.Count
		}
	}
	return 0
}

// WriteTo prints the report in the classic nginx log stats layout.
func (s *LogStats) WriteTo(w io.Writer) (int64, error) {
	var total int64
	write := func(format string, args ...interface{}) error {
		n, err := fmt.Fprintf(w, format, args...)
		total += int64(n)
		return err
	}
	if err := write("%d logs\nMethods:\n", s.Total); err != nil {
		return total, err
	}
	for _, m := range s.Methods {
		if err := write("\tmethod %s: %d\n", m.Method, m.Count); err != nil {
			return total, err
		}
	}
	if err := write("%d status check\nIPs:\n", s.StatusCheck); err != nil {
		return total, err
	}
	for _, ip := range s.TopIPs {
		if err := write("\t%s: %d\n", ip.IP, ip.Count); err != nil {
			return total, err
		}
	}
	return total, nil
}
