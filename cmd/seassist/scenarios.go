package main

// scenario is a canned customer request for demos.
type scenario struct {
	Name  string
	Title string
	Input string
}

var scenarios = []scenario{
	{
		Name:  "ecommerce",
		Title: "E-Commerce Web Application",
		Input: `We need to build an e-commerce web application for our retail business.

Key requirements:
- Support for 50,000 active users
- Product catalog with search and filtering
- Shopping cart and checkout process
- User authentication and profiles
- Order management system
- Integration with payment gateway
- Admin dashboard for inventory management
- Need high availability and performance
- Budget conscious but willing to invest in reliability
- Prefer deployment in US East region
- Must be PCI-DSS compliant for payment processing
- Need ability to scale for Black Friday traffic (3x normal load)
`,
	},
	{
		Name:  "iot",
		Title: "IoT Data Processing Platform",
		Input: `We're building an IoT data processing platform for smart building management.

Requirements from the meeting transcript:
- Collect data from 10,000+ IoT devices (temperature, humidity, occupancy sensors)
- Real-time data ingestion at 1 million events per hour
- Stream processing for anomaly detection
- Historical data storage for analytics (5 years retention)
- REST API for mobile app integration
- Machine learning for predictive maintenance
- Dashboard for building managers
- Multi-tenant architecture (100 buildings)
- Need 99.9% uptime SLA
- Data must stay within US
- Compliance with GDPR for EU visitors
- Cost optimization important - variable load (peak during business hours)
`,
	},
	{
		Name:  "website",
		Title: "Simple Corporate Website",
		Input: `Need a corporate website to replace our outdated on-premises server.

Basic requirements:
- Company information pages (About, Services, Contact)
- Blog with 2-3 posts per week
- Contact form
- Around 5,000 visitors per month
- Need SSL certificate
- Prefer fully managed solution
- Small IT team, want minimal maintenance
`,
	},
}

func scenarioNames() []string {
	names := make([]string, 0, len(scenarios))
	for _, s := range scenarios {
		names = append(names, s.Name)
	}
	return names
}

func findScenario(name string) (scenario, bool) {
	for _, s := range scenarios {
		if s.Name == name {
			return s, true
		}
	}
	return scenario{}, false
}
