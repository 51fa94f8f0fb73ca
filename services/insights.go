package services

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"apartments-scraper/models"
	"apartments-scraper/utils"
)

type InsightService struct {
	logger *utils.Logger
}

func NewInsightService(logger *utils.Logger) *InsightService {
	return &InsightService{logger: logger}
}

func (s *InsightService) Generate(listings []models.Listing, stats []models.NeighborhoodStat) *models.InsightReport {
	report := &models.InsightReport{
		ListingsByNeighborhood: make(map[string]int),
	}

	if len(listings) == 0 {
		return report
	}

	report.TotalListings = len(listings)

	var priced []models.Listing
	var walked []models.Listing

	for _, l := range listings {
		if l.AdType == "private" {
			report.PrivateListings++
		}
		if l.Price != nil && *l.Price > 0 {
			priced = append(priced, l)
		}
		if l.WalkingMinutes != nil {
			walked = append(walked, l)
		}
		if l.Neighborhood != "" {
			report.ListingsByNeighborhood[l.Neighborhood]++
		}
	}

	// Price stats (only listings with a price)
	if len(priced) > 0 {
		report.MinPrice = *priced[0].Price
		report.MaxPrice = *priced[0].Price
		report.MostExpensive = &priced[0]
		var total float64
		for i, l := range priced {
			total += *l.Price
			if *l.Price < report.MinPrice {
				report.MinPrice = *l.Price
			}
			if *l.Price > report.MaxPrice {
				report.MaxPrice = *l.Price
				report.MostExpensive = &priced[i]
			}
		}
		report.AveragePrice = round2(total / float64(len(priced)))
	}

	// Top 5 by walking distance
	sort.SliceStable(walked, func(i, j int) bool {
		return *walked[i].DistanceM < *walked[j].DistanceM
	})
	if len(walked) > 5 {
		walked = walked[:5]
	}
	report.ClosestToStation = walked

	var valued []models.NeighborhoodStat
	for _, st := range stats {
		if st.PricePerSqM != nil {
			valued = append(valued, st)
		}
	}
	sort.SliceStable(valued, func(i, j int) bool {
		return *valued[i].PricePerSqM < *valued[j].PricePerSqM
	})
	if len(valued) > 5 {
		valued = valued[:5]
	}
	report.BestValue = valued

	return report
}

func (s *InsightService) Print(w io.Writer, summary models.RunSummary, r *models.InsightReport) {
	sep := strings.Repeat("═", 58)
	thin := strings.Repeat("─", 58)

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n", sep)
	fmt.Fprintf(w, "\033[1;35m  📊 RENTAL LISTINGS RUN %s\033[0m\n", summary.RunID)
	fmt.Fprintf(w, "\033[1;35m%s\033[0m\n\n", sep)

	// Run
	fmt.Fprintf(w, "\033[1;33m  Run\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	fmt.Fprintf(w, "  Duration               : %s\n", summary.FinishedAt.Sub(summary.StartedAt).Round(time.Millisecond))
	fmt.Fprintf(w, "  Area queries           : \033[1m%d\033[0m (%d ok, %d failed)\n",
		summary.Fetch.Queries, summary.Fetch.Succeeded, summary.Fetch.Failed())
	reasons := summary.Fetch.FailuresByReason()
	keys := make([]string, 0, len(reasons))
	for k := range reasons {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "    %-20s : \033[1;31m%d\033[0m\n", k, reasons[k])
	}
	fmt.Fprintf(w, "  Listings               : \033[1m%d\033[0m (%d duplicate tokens)\n",
		summary.Listings, summary.Duplicates)
	fmt.Fprintf(w, "  Station lookups        : %d (%d failed)\n",
		summary.Distance.Lookups, summary.Distance.LookupFailures)
	fmt.Fprintf(w, "  Enriched / gaps        : %d / %d\n",
		summary.Distance.Resolved, summary.Distance.Gaps)
	fmt.Fprintf(w, "  Neighborhood groups    : %d\n", summary.Stats)
	fmt.Fprintln(w)

	// Overview
	fmt.Fprintf(w, "\033[1;33m  Overview\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	fmt.Fprintf(w, "  Total listings         : \033[1m%d\033[0m\n", r.TotalListings)
	fmt.Fprintf(w, "  Private (no broker)    : \033[1m%d\033[0m\n", r.PrivateListings)
	fmt.Fprintln(w)

	// Price Stats
	fmt.Fprintf(w, "\033[1;33m  Price Statistics (per month)\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if r.AveragePrice > 0 {
		fmt.Fprintf(w, "  Average price : \033[1;32m₪%.2f\033[0m\n", r.AveragePrice)
		fmt.Fprintf(w, "  Minimum price : \033[1;32m₪%.0f\033[0m\n", r.MinPrice)
		fmt.Fprintf(w, "  Maximum price : \033[1;32m₪%.0f\033[0m\n", r.MaxPrice)
	} else {
		fmt.Fprintf(w, "  No price data available\n")
	}
	fmt.Fprintln(w)

	if r.MostExpensive != nil {
		fmt.Fprintf(w, "\033[1;33m  Most Expensive Listing\033[0m\n")
		fmt.Fprintf(w, "  %s\n", thin)
		fmt.Fprintf(w, "  %s\n", truncate(address(r.MostExpensive), 50))
		fmt.Fprintf(w, "  URL   : %s\n", r.MostExpensive.URL)
		fmt.Fprintf(w, "  Price : \033[1;31m₪%.0f/month\033[0m\n", *r.MostExpensive.Price)
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "\033[1;33m  Closest to a Station\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if len(r.ClosestToStation) == 0 {
		fmt.Fprintf(w, "  No listings with a walking distance\n")
	} else {
		for i, l := range r.ClosestToStation {
			fmt.Fprintf(w, "  \033[1m%d.\033[0m %-32s %-16s \033[1;32m%d min\033[0m\n",
				i+1, truncate(address(&l), 30), truncate(*l.Station, 16), *l.WalkingMinutes)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "\033[1;33m  Best Value (₪ per m²)\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if len(r.BestValue) == 0 {
		fmt.Fprintf(w, "  No groups with size data\n")
	} else {
		for i, st := range r.BestValue {
			fmt.Fprintf(w, "  \033[1m%d.\033[0m %-28s %4.1f rooms  \033[1;32m%d\033[0m\n",
				i+1, truncate(st.Neighborhood+", "+st.City, 28), st.Rooms, *st.PricePerSqM)
		}
	}
	fmt.Fprintln(w)

	// Listings by Neighborhood
	fmt.Fprintf(w, "\033[1;33m  Listings by Neighborhood\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if len(r.ListingsByNeighborhood) == 0 {
		fmt.Fprintf(w, "  No neighborhood data\n")
	} else {
		type hoodCount struct {
			hood  string
			count int
		}
		var hoods []hoodCount
		for hood, cnt := range r.ListingsByNeighborhood {
			hoods = append(hoods, hoodCount{hood, cnt})
		}
		sort.Slice(hoods, func(i, j int) bool {
			if hoods[i].count != hoods[j].count {
				return hoods[i].count > hoods[j].count
			}
			return hoods[i].hood < hoods[j].hood
		})
		if len(hoods) > 15 {
			hoods = hoods[:15]
		}
		for _, hc := range hoods {
			bar := strings.Repeat("█", min(hc.count, 40))
			fmt.Fprintf(w, "  %-30s %s (%d)\n", truncate(hc.hood, 28), bar, hc.count)
		}
	}

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n\n", sep)
}

func address(l *models.Listing) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{l.Street, l.Neighborhood, l.City} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return l.Token
	}
	return strings.Join(parts, ", ")
}

func round2(f float64) float64 {
	return float64(int(f*100+0.5)) / 100
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
