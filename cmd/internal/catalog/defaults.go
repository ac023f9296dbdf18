package catalog

// Built-in catalog served when the store has no records or cannot be reached.

var defaultServices = []Service{
	{ID: "massage-swedish", Category: "massage", Name: "Swedish Massage", Description: "Classic relaxation massage with gentle, flowing strokes to ease tension and promote tranquility.", Duration: 60, Price: 2500, Image: "/images/massages/swedish.jpg", Popular: true, Active: true},
	{ID: "massage-deep-tissue", Category: "massage", Name: "Deep Tissue Massage", Description: "Intensive therapeutic massage targeting deep muscle layers to release chronic tension.", Duration: 75, Price: 3500, Image: "/images/massages/deep-tissue.jpg", Popular: true, Active: true},
	{ID: "massage-hot-stone", Category: "massage", Name: "Hot Stone Therapy", Description: "Heated basalt stones combined with massage for deep relaxation and muscle relief.", Duration: 90, Price: 4000, Image: "/images/massages/hot-stone.jpg", Active: true},
	{ID: "massage-aromatherapy", Category: "massage", Name: "Aromatherapy Massage", Description: "Essential oil infused massage for holistic healing of body and mind.", Duration: 60, Price: 3000, Image: "/images/massages/aromatherapy.jpg", Active: true},
	{ID: "facial-signature", Category: "facials", Name: "Signature Glow Facial", Description: "Our signature treatment combining cleansing, exfoliation, and hydration for radiant skin.", Duration: 60, Price: 3000, Image: "/images/services/facial.jpg", Popular: true, Active: true},
	{ID: "facial-anti-aging", Category: "facials", Name: "Anti-Aging Facial", Description: "Advanced treatment with peptides and retinol to reduce fine lines and restore youthfulness.", Duration: 75, Price: 4500, Image: "/images/services/facial.jpg", Active: true},
	{ID: "body-scrub", Category: "body", Name: "Body Scrub & Wrap", Description: "Full body exfoliation followed by a nourishing wrap for silky smooth skin.", Duration: 90, Price: 3500, Image: "/images/services/body.jpg", Active: true},
	{ID: "body-detox", Category: "body", Name: "Detox Treatment", Description: "Complete body detoxification therapy to eliminate toxins and boost energy.", Duration: 120, Price: 5000, Image: "/images/services/body.jpg", Active: true},
	{ID: "hair-scalp", Category: "hair", Name: "Scalp Treatment", Description: "Deep nourishing treatment for scalp health and hair vitality.", Duration: 45, Price: 1500, Image: "/images/services/hair.jpg", Active: true},
	{ID: "nails-manicure", Category: "nails", Name: "Luxury Manicure", Description: "Complete nail care with massage, shaping, and polish for beautiful hands.", Duration: 60, Price: 1200, Image: "/images/services/nails.jpg", Active: true},
	{ID: "nails-pedicure", Category: "nails", Name: "Spa Pedicure", Description: "Relaxing foot treatment with soak, scrub, massage, and polish.", Duration: 75, Price: 1500, Image: "/images/services/nails.jpg", Active: true},
	{ID: "wellness-package", Category: "wellness", Name: "Wellness Day Package", Description: "Full day of pampering including massage, facial, and body treatment.", Duration: 240, Price: 8000, Image: "/images/services/wellness.jpg", Popular: true, Active: true},
}

var defaultLocations = []Location{
	{ID: "delhi-cp", Name: "Connaught Place", City: "New Delhi", State: "Delhi", Address: "N-12, Block N, Connaught Place, New Delhi - 110001", Phone: "+91 98765 43210", Email: "cp@glowlogy.com", Hours: "9:00 AM - 9:00 PM", Coordinates: Coordinates{Lat: 28.6315, Lng: 77.2167}, Image: "/images/locations/delhi.jpg", Featured: true, Active: true, Amenities: []string{"Parking", "WiFi", "Locker", "Shower", "Cafe"}},
	{ID: "delhi-gk", Name: "Greater Kailash", City: "New Delhi", State: "Delhi", Address: "M-45, Greater Kailash Part 2, New Delhi - 110048", Phone: "+91 98765 43211", Email: "gk@glowlogy.com", Hours: "9:00 AM - 9:00 PM", Coordinates: Coordinates{Lat: 28.5355, Lng: 77.2410}, Image: "/images/locations/delhi.jpg", Active: true, Amenities: []string{"Parking", "WiFi", "Locker"}},
	{ID: "mumbai-bandra", Name: "Bandra West", City: "Mumbai", State: "Maharashtra", Address: "32, Turner Road, Bandra West, Mumbai - 400050", Phone: "+91 98765 43212", Email: "bandra@glowlogy.com", Hours: "9:00 AM - 9:00 PM", Coordinates: Coordinates{Lat: 19.0596, Lng: 72.8295}, Image: "/images/locations/mumbai.jpg", Featured: true, Active: true, Amenities: []string{"Valet Parking", "WiFi", "Locker", "Shower", "Cafe", "Pool"}},
	{ID: "mumbai-juhu", Name: "Juhu", City: "Mumbai", State: "Maharashtra", Address: "15, Juhu Tara Road, Juhu, Mumbai - 400049", Phone: "+91 98765 43213", Email: "juhu@glowlogy.com", Hours: "9:00 AM - 9:00 PM", Coordinates: Coordinates{Lat: 19.0883, Lng: 72.8263}, Image: "/images/locations/mumbai.jpg", Active: true, Amenities: []string{"Parking", "WiFi", "Locker", "Beach View"}},
	{ID: "bangalore-indiranagar", Name: "Indiranagar", City: "Bangalore", State: "Karnataka", Address: "100 Feet Road, Indiranagar, Bangalore - 560038", Phone: "+91 98765 43214", Email: "indiranagar@glowlogy.com", Hours: "9:00 AM - 9:00 PM", Coordinates: Coordinates{Lat: 12.9784, Lng: 77.6408}, Image: "/images/locations/bangalore.jpg", Featured: true, Active: true, Amenities: []string{"Parking", "WiFi", "Locker", "Shower", "Cafe"}},
	{ID: "bangalore-koramangala", Name: "Koramangala", City: "Bangalore", State: "Karnataka", Address: "5th Block, Koramangala, Bangalore - 560095", Phone: "+91 98765 43215", Email: "koramangala@glowlogy.com", Hours: "9:00 AM - 9:00 PM", Coordinates: Coordinates{Lat: 12.9352, Lng: 77.6245}, Image: "/images/locations/bangalore.jpg", Active: true, Amenities: []string{"Parking", "WiFi", "Locker"}},
}

var categories = []Category{
	{ID: "massage", Name: "Massage"},
	{ID: "facials", Name: "Facials"},
	{ID: "body", Name: "Body Treatments"},
	{ID: "hair", Name: "Hair & Scalp"},
	{ID: "nails", Name: "Nail Services"},
	{ID: "wellness", Name: "Wellness"},
}
